package disruptor

import (
	"fmt"
	"runtime"
	"slices"
	"sync/atomic"
)

const goschedEvery = 64 // reduce runtime.Gosched() frequency in hot loops

// ProducerType selects the claim strategy of a ring buffer.
type ProducerType int

const (
	// ProducerSingle must only be used when exactly one goroutine publishes.
	ProducerSingle ProducerType = iota
	ProducerMulti
)

func (p ProducerType) String() string {
	switch p {
	case ProducerSingle:
		return "single"
	case ProducerMulti:
		return "multi"
	default:
		return fmt.Sprintf("ProducerType(%d)", int(p))
	}
}

// Sequencer hands out slots of the ring to producers and announces when they
// become readable.
type Sequencer interface {
	Cursor() int64
	BufferSize() int64

	// HasAvailableCapacity reports whether required slots could be claimed now.
	HasAvailableCapacity(required int64) bool
	RemainingCapacity() int64

	// Claim moves the cursor to sequence. Only for initialisation of an idle ring.
	Claim(sequence int64)
	IsAvailable(sequence int64) bool

	// Next claims one slot and blocks (spinning) until there is room.
	Next() int64
	// NextN claims n contiguous slots and returns the highest one.
	NextN(n int64) int64
	TryNext() (int64, error)
	TryNextN(n int64) (int64, error)

	Publish(sequence int64)
	PublishRange(lo, hi int64)

	AddGatingSequences(seqs ...*Sequence)
	RemoveGatingSequence(seq *Sequence) bool
	// MinimumSequence is the minimum of the gating sequences and the cursor.
	MinimumSequence() int64
	// HighestPublishedSequence returns the last sequence in
	// [lowerBound, available] that is safe to read.
	HighestPublishedSequence(lowerBound, available int64) int64

	NewBarrier(dependencies ...*Sequence) SequenceBarrier
}

// cursoredSequencer is implemented by the sequencers of this package; it
// exposes the cursor itself to pollers.
type cursoredSequencer interface {
	Sequencer
	cursorSequence() *Sequence
}

// sequencerCore holds what both claim strategies share: the cursor, the wait
// strategy and the copy-on-write set of gating sequences.
type sequencerCore struct {
	bufferSize   int64
	waitStrategy WaitStrategy
	cursor       *Sequence
	gating       atomic.Pointer[[]*Sequence]
}

func (c *sequencerCore) init(bufferSize int, waitStrategy WaitStrategy) {
	if bufferSize < 1 {
		panic("bufferSize must not be less than 1")
	}
	if bufferSize&(bufferSize-1) != 0 {
		panic("bufferSize must be a power of 2")
	}
	c.bufferSize = int64(bufferSize)
	c.waitStrategy = waitStrategy
	c.cursor = NewSequence(InitialSequenceValue)
	c.gating.Store(&[]*Sequence{})
}

func (c *sequencerCore) gatingSequences() []*Sequence {
	return *c.gating.Load()
}

func (c *sequencerCore) Cursor() int64 {
	return c.cursor.Get()
}

func (c *sequencerCore) cursorSequence() *Sequence {
	return c.cursor
}

func (c *sequencerCore) BufferSize() int64 {
	return c.bufferSize
}

// AddGatingSequences moves each sequence to the current cursor before it
// starts gating, so that a late consumer does not hold producers back.
func (c *sequencerCore) AddGatingSequences(seqs ...*Sequence) {
	for {
		current := c.gating.Load()
		cursor := c.cursor.Get()
		for _, s := range seqs {
			s.Set(cursor)
		}
		updated := append(slices.Clone(*current), seqs...)
		if c.gating.CompareAndSwap(current, &updated) {
			break
		}
	}

	cursor := c.cursor.Get()
	for _, s := range seqs {
		s.Set(cursor)
	}
}

// RemoveGatingSequence removes every occurrence of seq.
func (c *sequencerCore) RemoveGatingSequence(seq *Sequence) bool {
	for {
		current := c.gating.Load()
		if !slices.Contains(*current, seq) {
			return false
		}
		updated := slices.DeleteFunc(slices.Clone(*current), func(s *Sequence) bool {
			return s == seq
		})
		if c.gating.CompareAndSwap(current, &updated) {
			return true
		}
	}
}

func (c *sequencerCore) MinimumSequence() int64 {
	return MinimumSequence(c.gatingSequences(), c.cursor.Get())
}

func (c *sequencerCore) minimumGating(fallback int64) int64 {
	return MinimumSequence(c.gatingSequences(), fallback)
}

func (c *sequencerCore) checkBatch(n int64) {
	if n < 1 || n > c.bufferSize {
		panic(fmt.Sprintf("n must be > 0 and <= %d, got %d", c.bufferSize, n))
	}
}

func (c *sequencerCore) newBarrier(s Sequencer, dependencies []*Sequence) SequenceBarrier {
	return newProcessingSequenceBarrier(s, c.waitStrategy, c.cursor, dependencies)
}

// spin backs off a producer waiting for capacity. Producers never park on
// the wait strategy: the wait is expected to be short.
func spin(spins *uint32) {
	*spins++
	if *spins%goschedEvery == 0 {
		runtime.Gosched()
	}
}

func log2(n int64) uint {
	var r uint
	for n > 1 {
		n >>= 1
		r++
	}
	return r
}
