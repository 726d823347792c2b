package disruptor

import "sync/atomic"

// SequenceBarrier is the view a consumer has of everything upstream of it:
// the producer cursor and the sequences of the consumers it depends on.
type SequenceBarrier interface {
	// WaitFor returns the highest sequence >= sequence that is safe to read,
	// or ErrAlert once the barrier has been alerted. It may return a lower
	// sequence (with a nil error) when the wait strategy gives up early or a
	// producer has claimed but not yet published.
	WaitFor(sequence int64) (int64, error)
	Cursor() int64
	IsAlerted() bool
	Alert()
	ClearAlert()
	CheckAlert() error
}

type processingSequenceBarrier struct {
	waitStrategy WaitStrategy
	dependent    SequenceReader
	cursor       *Sequence
	sequencer    Sequencer
	alerted      atomic.Bool
}

func newProcessingSequenceBarrier(sequencer Sequencer, waitStrategy WaitStrategy, cursor *Sequence, dependencies []*Sequence) *processingSequenceBarrier {
	b := &processingSequenceBarrier{
		waitStrategy: waitStrategy,
		cursor:       cursor,
		sequencer:    sequencer,
	}
	if len(dependencies) == 0 {
		b.dependent = cursor
	} else {
		b.dependent = sequenceGroup(append([]*Sequence(nil), dependencies...))
	}
	return b
}

func (b *processingSequenceBarrier) WaitFor(sequence int64) (int64, error) {
	if err := b.CheckAlert(); err != nil {
		return 0, err
	}

	available, err := b.waitStrategy.WaitFor(sequence, b.cursor, b.dependent, b)
	if err != nil {
		return available, err
	}
	if available < sequence {
		return available, nil
	}
	return b.sequencer.HighestPublishedSequence(sequence, available), nil
}

// Cursor returns the producer cursor without waiting.
func (b *processingSequenceBarrier) Cursor() int64 {
	return b.cursor.Get()
}

func (b *processingSequenceBarrier) IsAlerted() bool {
	return b.alerted.Load()
}

// Alert marks the barrier and wakes consumers parked in the wait strategy so
// that they observe it.
func (b *processingSequenceBarrier) Alert() {
	b.alerted.Store(true)
	b.waitStrategy.SignalAllWhenBlocking()
}

func (b *processingSequenceBarrier) ClearAlert() {
	b.alerted.Store(false)
}

func (b *processingSequenceBarrier) CheckAlert() error {
	if b.alerted.Load() {
		return ErrAlert
	}
	return nil
}
