package disruptor

import (
	"math"
	"strconv"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// InitialSequenceValue is the value of a sequence nothing has been published to.
const InitialSequenceValue int64 = -1

// SequenceReader is a read-only view of a sequence value.
type SequenceReader interface {
	Get() int64
}

// Sequence is a padded, monotonically advancing counter shared between goroutines.
// Every sequence owns a full cache line so that independent producers and
// consumers never invalidate each other's counters.
type Sequence struct {
	_     cpu.CacheLinePad
	value atomic.Int64
	_     cpu.CacheLinePad
}

// NewSequence creates a sequence set to initial.
func NewSequence(initial int64) *Sequence {
	s := &Sequence{}
	s.value.Store(initial)
	return s
}

// Get returns the current value.
func (s *Sequence) Get() int64 {
	return s.value.Load()
}

// Set stores v. Writes made before Set are visible to any goroutine that
// observes v through Get.
func (s *Sequence) Set(v int64) {
	s.value.Store(v)
}

// CompareAndSet atomically replaces expected with v.
func (s *Sequence) CompareAndSet(expected, v int64) bool {
	return s.value.CompareAndSwap(expected, v)
}

// IncrementAndGet atomically adds one and returns the new value.
func (s *Sequence) IncrementAndGet() int64 {
	return s.value.Add(1)
}

// AddAndGet atomically adds n and returns the new value.
func (s *Sequence) AddAndGet(n int64) int64 {
	return s.value.Add(n)
}

// String returns the current value in decimal.
func (s *Sequence) String() string {
	return strconv.FormatInt(s.Get(), 10)
}

// MinimumSequence returns the smallest value among seqs, or fallback when it
// is smaller or seqs is empty.
func MinimumSequence(seqs []*Sequence, fallback int64) int64 {
	minimum := fallback
	for _, s := range seqs {
		if v := s.Get(); v < minimum {
			minimum = v
		}
	}
	return minimum
}

// sequenceGroup is a fixed set of sequences read as their minimum.
type sequenceGroup []*Sequence

func (g sequenceGroup) Get() int64 {
	if len(g) == 1 {
		return g[0].Get()
	}
	return MinimumSequence(g, math.MaxInt64)
}
