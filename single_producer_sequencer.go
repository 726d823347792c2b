package disruptor

import "golang.org/x/sys/cpu"

// SingleProducerSequencer is a Sequencer for rings written by exactly one
// goroutine. Claiming needs no atomic read-modify-write: the producer keeps
// its own view of the next sequence and of the slowest consumer.
//
// IMPORTANT: Next, TryNext, Publish and RemainingCapacity must be called from
// the single producer goroutine.
type SingleProducerSequencer struct {
	sequencerCore
	_           cpu.CacheLinePad
	nextValue   int64 // last claimed sequence
	cachedValue int64 // last observed minimum of the gating sequences
	_           cpu.CacheLinePad
}

// NewSingleProducerSequencer creates a sequencer for a ring of bufferSize
// slots. bufferSize must be a power of two.
func NewSingleProducerSequencer(bufferSize int, waitStrategy WaitStrategy) *SingleProducerSequencer {
	s := &SingleProducerSequencer{
		nextValue:   InitialSequenceValue,
		cachedValue: InitialSequenceValue,
	}
	s.init(bufferSize, waitStrategy)
	return s
}

func (s *SingleProducerSequencer) HasAvailableCapacity(required int64) bool {
	return s.hasAvailableCapacity(required, false)
}

func (s *SingleProducerSequencer) hasAvailableCapacity(required int64, doStore bool) bool {
	nextValue := s.nextValue
	wrapPoint := nextValue + required - s.bufferSize
	cachedGating := s.cachedValue

	if wrapPoint > cachedGating || cachedGating > nextValue {
		if doStore {
			// make the claimed position visible before reading the consumers
			s.cursor.Set(nextValue)
		}
		minSequence := s.minimumGating(nextValue)
		s.cachedValue = minSequence
		if wrapPoint > minSequence {
			return false
		}
	}
	return true
}

func (s *SingleProducerSequencer) Next() int64 {
	return s.NextN(1)
}

func (s *SingleProducerSequencer) NextN(n int64) int64 {
	s.checkBatch(n)

	nextValue := s.nextValue
	nextSequence := nextValue + n
	wrapPoint := nextSequence - s.bufferSize
	cachedGating := s.cachedValue

	if wrapPoint > cachedGating || cachedGating > nextValue {
		s.cursor.Set(nextValue)

		var spins uint32
		minSequence := s.minimumGating(nextValue)
		for wrapPoint > minSequence {
			spin(&spins)
			minSequence = s.minimumGating(nextValue)
		}
		s.cachedValue = minSequence
	}

	s.nextValue = nextSequence
	return nextSequence
}

func (s *SingleProducerSequencer) TryNext() (int64, error) {
	return s.TryNextN(1)
}

func (s *SingleProducerSequencer) TryNextN(n int64) (int64, error) {
	s.checkBatch(n)
	if !s.hasAvailableCapacity(n, true) {
		return 0, ErrInsufficientCapacity
	}
	s.nextValue += n
	return s.nextValue, nil
}

func (s *SingleProducerSequencer) RemainingCapacity() int64 {
	nextValue := s.nextValue
	consumed := s.minimumGating(nextValue)
	return s.bufferSize - (nextValue - consumed)
}

func (s *SingleProducerSequencer) Claim(sequence int64) {
	s.nextValue = sequence
}

// Publish advances the cursor. With one producer the cursor is always the
// highest contiguous published sequence.
func (s *SingleProducerSequencer) Publish(sequence int64) {
	s.cursor.Set(sequence)
	s.waitStrategy.SignalAllWhenBlocking()
}

func (s *SingleProducerSequencer) PublishRange(_, hi int64) {
	s.Publish(hi)
}

func (s *SingleProducerSequencer) IsAvailable(sequence int64) bool {
	current := s.cursor.Get()
	return sequence <= current && sequence > current-s.bufferSize
}

func (s *SingleProducerSequencer) HighestPublishedSequence(_, available int64) int64 {
	return available
}

func (s *SingleProducerSequencer) NewBarrier(dependencies ...*Sequence) SequenceBarrier {
	return s.newBarrier(s, dependencies)
}

var _ Sequencer = (*SingleProducerSequencer)(nil)
