package disruptor

import "golang.org/x/sys/cpu"

// EventFactory pre-allocates the entries of a ring. It is called once per
// slot at construction and must not fail.
type EventFactory[T any] func() T

// EventTranslator fills a claimed entry before it is published.
type EventTranslator[T any] func(event *T, sequence int64)

// EventTranslatorOneArg fills a claimed entry from arg.
type EventTranslatorOneArg[T, A any] func(event *T, sequence int64, arg A)

// DataProvider gives access to the entry stored for a sequence.
type DataProvider[T any] interface {
	Get(sequence int64) *T
}

// RingBuffer is a fixed-size circular array of pre-allocated entries whose
// reuse is coordinated by a Sequencer. Slots are addressed by
// sequence & (size-1); the size must be a power of two.
type RingBuffer[T any] struct {
	_          cpu.CacheLinePad
	indexMask  int64
	entries    []T
	bufferSize int64
	sequencer  cursoredSequencer
	_          cpu.CacheLinePad
}

// NewRingBuffer creates a ring of bufferSize entries for the given producer type.
// It panics if bufferSize is not a power of two.
func NewRingBuffer[T any](producerType ProducerType, factory EventFactory[T], bufferSize int, waitStrategy WaitStrategy) *RingBuffer[T] {
	switch producerType {
	case ProducerSingle:
		return NewSingleProducer(factory, bufferSize, waitStrategy)
	case ProducerMulti:
		return NewMultiProducer(factory, bufferSize, waitStrategy)
	default:
		panic("unknown producer type " + producerType.String())
	}
}

// NewSingleProducer creates a ring published to by exactly one goroutine.
func NewSingleProducer[T any](factory EventFactory[T], bufferSize int, waitStrategy WaitStrategy) *RingBuffer[T] {
	return newRingBuffer(factory, NewSingleProducerSequencer(bufferSize, waitStrategy))
}

// NewMultiProducer creates a ring that any number of goroutines may publish to.
func NewMultiProducer[T any](factory EventFactory[T], bufferSize int, waitStrategy WaitStrategy) *RingBuffer[T] {
	return newRingBuffer(factory, NewMultiProducerSequencer(bufferSize, waitStrategy))
}

func newRingBuffer[T any](factory EventFactory[T], sequencer cursoredSequencer) *RingBuffer[T] {
	size := sequencer.BufferSize()
	rb := &RingBuffer[T]{
		indexMask:  size - 1,
		entries:    make([]T, size),
		bufferSize: size,
		sequencer:  sequencer,
	}
	for i := range rb.entries {
		rb.entries[i] = factory()
	}
	return rb
}

// Get returns the entry for sequence for in-place mutation. Producers may
// write it between claim and publish; consumers may read it once their
// barrier reports it as available.
func (rb *RingBuffer[T]) Get(sequence int64) *T {
	return &rb.entries[sequence&rb.indexMask]
}

func (rb *RingBuffer[T]) Next() int64 {
	return rb.sequencer.Next()
}

func (rb *RingBuffer[T]) NextN(n int64) int64 {
	return rb.sequencer.NextN(n)
}

func (rb *RingBuffer[T]) TryNext() (int64, error) {
	return rb.sequencer.TryNext()
}

func (rb *RingBuffer[T]) TryNextN(n int64) (int64, error) {
	return rb.sequencer.TryNextN(n)
}

func (rb *RingBuffer[T]) Publish(sequence int64) {
	rb.sequencer.Publish(sequence)
}

func (rb *RingBuffer[T]) PublishRange(lo, hi int64) {
	rb.sequencer.PublishRange(lo, hi)
}

// ResetTo moves the ring to sequence as if it had just been published.
// Only safe while nothing is producing or consuming.
func (rb *RingBuffer[T]) ResetTo(sequence int64) {
	rb.sequencer.Claim(sequence)
	rb.sequencer.Publish(sequence)
}

func (rb *RingBuffer[T]) IsPublished(sequence int64) bool {
	return rb.sequencer.IsAvailable(sequence)
}

func (rb *RingBuffer[T]) Cursor() int64 {
	return rb.sequencer.Cursor()
}

func (rb *RingBuffer[T]) BufferSize() int64 {
	return rb.bufferSize
}

func (rb *RingBuffer[T]) HasAvailableCapacity(required int64) bool {
	return rb.sequencer.HasAvailableCapacity(required)
}

func (rb *RingBuffer[T]) RemainingCapacity() int64 {
	return rb.sequencer.RemainingCapacity()
}

// AddGatingSequences makes producers wait for seqs before reusing a slot.
func (rb *RingBuffer[T]) AddGatingSequences(seqs ...*Sequence) {
	rb.sequencer.AddGatingSequences(seqs...)
}

func (rb *RingBuffer[T]) RemoveGatingSequence(seq *Sequence) bool {
	return rb.sequencer.RemoveGatingSequence(seq)
}

func (rb *RingBuffer[T]) MinimumGatingSequence() int64 {
	return rb.sequencer.MinimumSequence()
}

// NewBarrier creates a barrier over the cursor and the given upstream sequences.
func (rb *RingBuffer[T]) NewBarrier(dependencies ...*Sequence) SequenceBarrier {
	return rb.sequencer.NewBarrier(dependencies...)
}

// PublishEvent claims the next slot, fills it with translator and publishes
// it. The slot is published even if translator panics, so the sequence is
// never left claimed.
func (rb *RingBuffer[T]) PublishEvent(translator EventTranslator[T]) {
	sequence := rb.sequencer.Next()
	rb.translateAndPublish(translator, sequence)
}

// TryPublishEvent is PublishEvent that fails with ErrInsufficientCapacity
// instead of waiting for room.
func (rb *RingBuffer[T]) TryPublishEvent(translator EventTranslator[T]) error {
	sequence, err := rb.sequencer.TryNext()
	if err != nil {
		return err
	}
	rb.translateAndPublish(translator, sequence)
	return nil
}

// PublishEvents claims one contiguous batch, one slot per translator, and
// publishes it in a single step.
func (rb *RingBuffer[T]) PublishEvents(translators ...EventTranslator[T]) {
	if len(translators) == 0 {
		return
	}
	hi := rb.sequencer.NextN(int64(len(translators)))
	rb.translateAndPublishBatch(translators, hi)
}

func (rb *RingBuffer[T]) TryPublishEvents(translators ...EventTranslator[T]) error {
	if len(translators) == 0 {
		return nil
	}
	hi, err := rb.sequencer.TryNextN(int64(len(translators)))
	if err != nil {
		return err
	}
	rb.translateAndPublishBatch(translators, hi)
	return nil
}

func (rb *RingBuffer[T]) translateAndPublish(translator EventTranslator[T], sequence int64) {
	defer rb.sequencer.Publish(sequence)
	translator(rb.Get(sequence), sequence)
}

func (rb *RingBuffer[T]) translateAndPublishBatch(translators []EventTranslator[T], hi int64) {
	lo := hi - int64(len(translators)) + 1
	defer rb.sequencer.PublishRange(lo, hi)
	for i, translator := range translators {
		sequence := lo + int64(i)
		translator(rb.Get(sequence), sequence)
	}
}

// EventSink is what the generic publish helpers write to: a *RingBuffer or a
// *Disruptor.
type EventSink[T any] interface {
	ringBuffer() *RingBuffer[T]
}

func (rb *RingBuffer[T]) ringBuffer() *RingBuffer[T] { return rb }

// PublishEventWith publishes one entry filled from arg.
func PublishEventWith[T, A any](sink EventSink[T], translator EventTranslatorOneArg[T, A], arg A) {
	rb := sink.ringBuffer()
	sequence := rb.sequencer.Next()
	defer rb.sequencer.Publish(sequence)
	translator(rb.Get(sequence), sequence, arg)
}

func TryPublishEventWith[T, A any](sink EventSink[T], translator EventTranslatorOneArg[T, A], arg A) error {
	rb := sink.ringBuffer()
	sequence, err := rb.sequencer.TryNext()
	if err != nil {
		return err
	}
	defer rb.sequencer.Publish(sequence)
	translator(rb.Get(sequence), sequence, arg)
	return nil
}

// PublishEventsWith publishes one entry per element of args as a single
// contiguous batch.
func PublishEventsWith[T, A any](sink EventSink[T], translator EventTranslatorOneArg[T, A], args []A) {
	if len(args) == 0 {
		return
	}
	rb := sink.ringBuffer()
	hi := rb.sequencer.NextN(int64(len(args)))
	lo := hi - int64(len(args)) + 1
	defer rb.sequencer.PublishRange(lo, hi)
	for i, arg := range args {
		sequence := lo + int64(i)
		translator(rb.Get(sequence), sequence, arg)
	}
}
