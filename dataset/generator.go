package dataset

import (
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// chunkStream serves a split's samples a few at a time, reading chunks
// from the store lazily so only one chunk is resident per stream.
type chunkStream struct {
	split string
	iter  iterator.Iterator
	buf   Examples
	pos   int
	shape [2]int
	begun bool
	done  bool
}

func newChunkStream(s *Store, split string) *chunkStream {
	prefix := []byte(chunkPrefix + split + "/")
	return &chunkStream{
		split: split,
		iter:  s.db.NewIterator(util.BytesPrefix(prefix), nil),
	}
}

// next returns up to n samples, fewer only at the end of the stream.
func (cs *chunkStream) next(n int) (Examples, error) {
	out := Examples{XShape: cs.shape}
	for out.Len() < n && !cs.done {
		if cs.pos >= cs.buf.Len() {
			if !cs.iter.Next() {
				cs.done = true
				if err := cs.iter.Error(); err != nil {
					return Examples{}, errors.Wrapf(err, "reading split %q", cs.split)
				}
				break
			}
			chunk, err := decodeChunk(cs.iter.Value())
			if err != nil {
				return Examples{}, errors.Wrapf(err, "reading split %q", cs.split)
			}
			if !cs.begun {
				cs.begun = true
				cs.shape = chunk.XShape
				out.XShape = chunk.XShape
			} else if chunk.XShape != cs.shape {
				return Examples{}, &ShapeError{Split: cs.split, Want: cs.shape, Got: chunk.XShape}
			}
			cs.buf = chunk
			cs.pos = 0
		}
		take := n - out.Len()
		if avail := cs.buf.Len() - cs.pos; take > avail {
			take = avail
		}
		out.X = append(out.X, cs.buf.X[cs.pos:cs.pos+take]...)
		out.Y = append(out.Y, cs.buf.Y[cs.pos:cs.pos+take]...)
		cs.pos += take
	}
	return out, nil
}

// Close releases the stream's iterator.
func (cs *chunkStream) Close() {
	cs.iter.Release()
}

// TripletBatch is one lazily-read batch of anchor/positive/negative
// samples, all the same length and sample shape.
type TripletBatch struct {
	Anchors   Examples
	Positives Examples
	Negatives Examples
}

// TripletBatches walks the three streams of a triplet split ("train" or
// "valid") in lockstep, batchSize samples at a time. The whole-split and
// batched supply modes yield identical data; only the memory footprint
// differs. An optional stopAfter bound caps how many batches are served.
type TripletBatches struct {
	anchors   *chunkStream
	positives *chunkStream
	negatives *chunkStream
	batchSize int
	stopAfter int
	served    int
}

// NewTripletBatches opens a lazy batch sequence over split_anchors,
// split_positives and split_negatives. stopAfter <= 0 means unbounded.
func NewTripletBatches(s *Store, split string, batchSize, stopAfter int) (*TripletBatches, error) {
	if batchSize <= 0 {
		return nil, errors.Errorf("batch size must be positive, got %d", batchSize)
	}
	for _, stream := range []string{split + "_anchors", split + "_positives", split + "_negatives"} {
		if _, err := s.shapes(stream); err != nil {
			return nil, err
		}
	}
	return &TripletBatches{
		anchors:   newChunkStream(s, split+"_anchors"),
		positives: newChunkStream(s, split+"_positives"),
		negatives: newChunkStream(s, split+"_negatives"),
		batchSize: batchSize,
		stopAfter: stopAfter,
	}, nil
}

// Next returns the next batch. ok is false once the streams are exhausted
// or the stop-after bound is reached.
func (g *TripletBatches) Next() (batch TripletBatch, ok bool, err error) {
	if g.stopAfter > 0 && g.served >= g.stopAfter {
		return TripletBatch{}, false, nil
	}
	a, err := g.anchors.next(g.batchSize)
	if err != nil {
		return TripletBatch{}, false, err
	}
	p, err := g.positives.next(g.batchSize)
	if err != nil {
		return TripletBatch{}, false, err
	}
	n, err := g.negatives.next(g.batchSize)
	if err != nil {
		return TripletBatch{}, false, err
	}
	if a.Len() == 0 && p.Len() == 0 && n.Len() == 0 {
		return TripletBatch{}, false, nil
	}
	if a.Len() != p.Len() || a.Len() != n.Len() {
		return TripletBatch{}, false, errors.Errorf("triplet streams are uneven: %d anchors, %d positives, %d negatives", a.Len(), p.Len(), n.Len())
	}
	if a.XShape != p.XShape {
		return TripletBatch{}, false, &ShapeError{Split: g.positives.split, Want: a.XShape, Got: p.XShape}
	}
	if a.XShape != n.XShape {
		return TripletBatch{}, false, &ShapeError{Split: g.negatives.split, Want: a.XShape, Got: n.XShape}
	}
	g.served++
	return TripletBatch{Anchors: a, Positives: p, Negatives: n}, true, nil
}

// Close releases the underlying iterators.
func (g *TripletBatches) Close() {
	g.anchors.Close()
	g.positives.Close()
	g.negatives.Close()
}
