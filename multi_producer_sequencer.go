package disruptor

import "sync/atomic"

// MultiProducerSequencer is a Sequencer safe for any number of concurrent
// producers.
//
// Producers claim from a shared cursor, so the cursor only says which slots
// are taken, not which are written. Readiness is tracked per slot in
// availableBuffer: publishing slot seq stores its lap number (seq / size) and
// a reader accepts a slot only when the stored lap matches. Producers may
// therefore publish out of order while readers never see a gap.
type MultiProducerSequencer struct {
	sequencerCore
	gatingCache     *Sequence
	availableBuffer []atomic.Int32
	indexMask       int64
	indexShift      uint
}

// NewMultiProducerSequencer creates a sequencer for a ring of bufferSize
// slots. bufferSize must be a power of two.
func NewMultiProducerSequencer(bufferSize int, waitStrategy WaitStrategy) *MultiProducerSequencer {
	s := &MultiProducerSequencer{gatingCache: NewSequence(InitialSequenceValue)}
	s.init(bufferSize, waitStrategy)

	s.availableBuffer = make([]atomic.Int32, bufferSize)
	for i := range s.availableBuffer {
		s.availableBuffer[i].Store(-1)
	}
	s.indexMask = s.bufferSize - 1
	s.indexShift = log2(s.bufferSize)
	return s
}

func (s *MultiProducerSequencer) HasAvailableCapacity(required int64) bool {
	return s.hasAvailableCapacity(required, s.cursor.Get())
}

func (s *MultiProducerSequencer) hasAvailableCapacity(required, cursorValue int64) bool {
	wrapPoint := cursorValue + required - s.bufferSize
	cachedGating := s.gatingCache.Get()

	if wrapPoint > cachedGating || cachedGating > cursorValue {
		minSequence := s.minimumGating(cursorValue)
		s.gatingCache.Set(minSequence)
		if wrapPoint > minSequence {
			return false
		}
	}
	return true
}

func (s *MultiProducerSequencer) Next() int64 {
	return s.NextN(1)
}

// NextN reserves n slots with a single atomic add and then waits, spinning,
// until the slowest gating consumer has left the wrapped region.
func (s *MultiProducerSequencer) NextN(n int64) int64 {
	s.checkBatch(n)

	next := s.cursor.AddAndGet(n)
	current := next - n
	wrapPoint := next - s.bufferSize
	cachedGating := s.gatingCache.Get()

	if wrapPoint > cachedGating || cachedGating > current {
		var spins uint32
		gating := s.minimumGating(current)
		for wrapPoint > gating {
			spin(&spins)
			gating = s.minimumGating(current)
		}
		s.gatingCache.Set(gating)
	}
	return next
}

func (s *MultiProducerSequencer) TryNext() (int64, error) {
	return s.TryNextN(1)
}

func (s *MultiProducerSequencer) TryNextN(n int64) (int64, error) {
	s.checkBatch(n)
	for {
		current := s.cursor.Get()
		next := current + n
		if !s.hasAvailableCapacity(n, current) {
			return 0, ErrInsufficientCapacity
		}
		if s.cursor.CompareAndSet(current, next) {
			return next, nil
		}
	}
}

func (s *MultiProducerSequencer) RemainingCapacity() int64 {
	produced := s.cursor.Get()
	consumed := s.minimumGating(produced)
	return s.bufferSize - (produced - consumed)
}

func (s *MultiProducerSequencer) Claim(sequence int64) {
	s.cursor.Set(sequence)
}

func (s *MultiProducerSequencer) Publish(sequence int64) {
	s.setAvailable(sequence)
	s.waitStrategy.SignalAllWhenBlocking()
}

func (s *MultiProducerSequencer) PublishRange(lo, hi int64) {
	for l := lo; l <= hi; l++ {
		s.setAvailable(l)
	}
	s.waitStrategy.SignalAllWhenBlocking()
}

func (s *MultiProducerSequencer) setAvailable(sequence int64) {
	s.availableBuffer[sequence&s.indexMask].Store(s.availabilityFlag(sequence))
}

func (s *MultiProducerSequencer) IsAvailable(sequence int64) bool {
	return s.availableBuffer[sequence&s.indexMask].Load() == s.availabilityFlag(sequence)
}

// availabilityFlag is the lap counter of sequence.
func (s *MultiProducerSequencer) availabilityFlag(sequence int64) int32 {
	return int32(sequence >> s.indexShift)
}

// HighestPublishedSequence stops at the first slot in [lowerBound, available]
// that has not been published for the current lap.
func (s *MultiProducerSequencer) HighestPublishedSequence(lowerBound, available int64) int64 {
	for sequence := lowerBound; sequence <= available; sequence++ {
		if !s.IsAvailable(sequence) {
			return sequence - 1
		}
	}
	return available
}

func (s *MultiProducerSequencer) NewBarrier(dependencies ...*Sequence) SequenceBarrier {
	return s.newBarrier(s, dependencies)
}

var _ Sequencer = (*MultiProducerSequencer)(nil)
