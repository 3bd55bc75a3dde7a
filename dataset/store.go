// Package dataset stores behavioral biometric samples. A store holds named
// splits (per-user train/valid/test partitions and whole triplet streams)
// in leveldb, chunked so that splits can be read whole or streamed batch by
// batch.
package dataset

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"strconv"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// Examples is a batch of samples with their labels. X rows are flattened
// row-major (steps, feats) tensors; XShape records the per-sample shape.
// Labels are 1 for the genuine user, 0 for impostors, -1 for the unknown
// sentinel in test partitions.
type Examples struct {
	X      [][]float64
	Y      []float64
	XShape [2]int
}

// Len returns the number of samples.
func (e Examples) Len() int {
	return len(e.X)
}

// ShapeError reports that a split or stream carries samples of a shape the
// caller did not expect. It is raised before any numeric work starts.
type ShapeError struct {
	Split string
	Want  [2]int
	Got   [2]int
}

// Error implements error.
func (e *ShapeError) Error() string {
	return fmt.Sprintf("split %q: sample shape %dx%d does not match %dx%d", e.Split, e.Got[0], e.Got[1], e.Want[0], e.Want[1])
}

const (
	metaUsersKey = "meta/users"
	chunkPrefix  = "split/"
	shapePrefix  = "shape/"
)

type shapeRecord struct {
	Count  int
	XShape [2]int
}

// Store is a leveldb-backed example store.
type Store struct {
	db *leveldb.DB
}

// Open opens an existing store read-only. A missing store is a
// configuration error and fails immediately, before any training work.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{ErrorIfMissing: true, ReadOnly: true})
	if err != nil {
		return nil, errors.Wrapf(err, "opening example store at %s", path)
	}
	return &Store{db: db}, nil
}

// Create opens a store for writing, creating it if needed.
func Create(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "creating example store at %s", path)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetNumUsers records how many user identities the store partitions.
func (s *Store) SetNumUsers(n int) error {
	return s.db.Put([]byte(metaUsersKey), []byte(strconv.Itoa(n)), nil)
}

// NumUsers returns the recorded user count.
func (s *Store) NumUsers() (int, error) {
	val, err := s.db.Get([]byte(metaUsersKey), nil)
	if err != nil {
		return 0, errors.Wrapf(err, "store has no user count")
	}
	n, err := strconv.Atoi(string(val))
	if err != nil {
		return 0, errors.Wrapf(err, "store has a corrupt user count")
	}
	return n, nil
}

func userSplit(user int, split string) string {
	return fmt.Sprintf("user_%d_%s", user, split)
}

func chunkKey(split string, idx int) []byte {
	return []byte(fmt.Sprintf("%s%s/%08d", chunkPrefix, split, idx))
}

func encodeChunk(ex Examples) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(ex); err != nil {
		return nil, errors.Wrapf(err, "encoding chunk")
	}
	return snappy.Encode(nil, buf.Bytes()), nil
}

func decodeChunk(val []byte) (Examples, error) {
	raw, err := snappy.Decode(nil, val)
	if err != nil {
		return Examples{}, errors.Wrapf(err, "decompressing chunk")
	}
	var ex Examples
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&ex); err != nil {
		return Examples{}, errors.Wrapf(err, "decoding chunk")
	}
	return ex, nil
}

// PutExamples writes a whole split in chunks of chunkSize samples. Every
// sample must match the declared shape.
func (s *Store) PutExamples(split string, ex Examples, chunkSize int) error {
	if len(ex.X) != len(ex.Y) {
		return errors.Errorf("split %q: %d samples but %d labels", split, len(ex.X), len(ex.Y))
	}
	if chunkSize <= 0 {
		return errors.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	want := ex.XShape[0] * ex.XShape[1]
	for _, row := range ex.X {
		if len(row) != want {
			return &ShapeError{Split: split, Want: ex.XShape, Got: [2]int{1, len(row)}}
		}
	}

	batch := new(leveldb.Batch)
	idx := 0
	for start := 0; start < len(ex.X); start += chunkSize {
		end := start + chunkSize
		if end > len(ex.X) {
			end = len(ex.X)
		}
		chunk := Examples{X: ex.X[start:end], Y: ex.Y[start:end], XShape: ex.XShape}
		val, err := encodeChunk(chunk)
		if err != nil {
			return err
		}
		batch.Put(chunkKey(split, idx), val)
		idx++
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(shapeRecord{Count: len(ex.X), XShape: ex.XShape}); err != nil {
		return errors.Wrapf(err, "encoding shape record")
	}
	batch.Put([]byte(shapePrefix+split), buf.Bytes())

	return errors.Wrapf(s.db.Write(batch, nil), "writing split %q", split)
}

// PutUserExamples writes one user's partition of a split.
func (s *Store) PutUserExamples(user int, split string, ex Examples, chunkSize int) error {
	return s.PutExamples(userSplit(user, split), ex, chunkSize)
}

// Shapes returns the X and y shapes of a split, X as (count, steps, feats)
// and y as (count,).
func (s *Store) Shapes(split string) (xShape, yShape []int, err error) {
	rec, err := s.shapes(split)
	if err != nil {
		return nil, nil, err
	}
	return []int{rec.Count, rec.XShape[0], rec.XShape[1]}, []int{rec.Count}, nil
}

func (s *Store) shapes(split string) (shapeRecord, error) {
	val, err := s.db.Get([]byte(shapePrefix+split), nil)
	if err != nil {
		return shapeRecord{}, errors.Wrapf(err, "split %q not found in store", split)
	}
	var rec shapeRecord
	if err := gob.NewDecoder(bytes.NewReader(val)).Decode(&rec); err != nil {
		return shapeRecord{}, errors.Wrapf(err, "split %q has a corrupt shape record", split)
	}
	return rec, nil
}

// Examples reads a whole split into memory.
func (s *Store) Examples(split string) (Examples, error) {
	rec, err := s.shapes(split)
	if err != nil {
		return Examples{}, err
	}
	cs := newChunkStream(s, split)
	defer cs.Close()
	ex, err := cs.next(rec.Count)
	if err != nil {
		return Examples{}, err
	}
	if ex.Len() != rec.Count {
		return Examples{}, errors.Errorf("split %q holds %d samples, shape record says %d", split, ex.Len(), rec.Count)
	}
	return ex, nil
}

// UserExamples reads one user's partition of a split ("train", "valid" or
// "test") into memory.
func (s *Store) UserExamples(user int, split string) (Examples, error) {
	return s.Examples(userSplit(user, split))
}
