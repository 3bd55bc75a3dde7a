package nnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStopToken(t *testing.T) {
	token := &StopToken{}
	assert.False(t, token.Stopped())
	token.Stop()
	assert.True(t, token.Stopped())
	token.Stop()
	assert.True(t, token.Stopped())
}

func TestNilStopToken(t *testing.T) {
	var token *StopToken
	token.Stop()
	assert.False(t, token.Stopped())
}
