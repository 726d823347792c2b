package disruptor

// PollState reports the outcome of EventPoller.Poll.
type PollState int

const (
	// PollProcessing means at least one event was handed to the handler.
	PollProcessing PollState = iota
	// PollGating means events were published but an upstream sequence has not
	// reached them yet.
	PollGating
	// PollIdle means nothing has been published past the poller.
	PollIdle
)

// PollHandler receives polled events. Returning false stops the current poll
// after this event.
type PollHandler[T any] func(event *T, sequence int64, endOfBatch bool) (bool, error)

// EventPoller is a pull-style consumer: the caller decides when to drain the
// ring instead of dedicating a goroutine to it. Its sequence must be added to
// the ring's gating sequences, or producers will overwrite unread entries.
type EventPoller[T any] struct {
	ring     *RingBuffer[T]
	sequence *Sequence
	gating   SequenceReader
}

// NewPoller creates a poller that reads behind the given upstream sequences,
// or behind the producer cursor when none are given.
func (rb *RingBuffer[T]) NewPoller(gating ...*Sequence) *EventPoller[T] {
	var reader SequenceReader = rb.sequencer.cursorSequence()
	if len(gating) > 0 {
		reader = sequenceGroup(append([]*Sequence(nil), gating...))
	}
	return &EventPoller[T]{
		ring:     rb,
		sequence: NewSequence(InitialSequenceValue),
		gating:   reader,
	}
}

func (p *EventPoller[T]) Sequence() *Sequence {
	return p.sequence
}

// Poll hands every available event to handler. When handler fails, the
// poller stays before the failed event so the next Poll retries it.
func (p *EventPoller[T]) Poll(handler PollHandler[T]) (PollState, error) {
	current := p.sequence.Get()
	next := current + 1
	available := p.ring.sequencer.HighestPublishedSequence(next, p.gating.Get())

	if next > available {
		if p.ring.sequencer.Cursor() >= next {
			return PollGating, nil
		}
		return PollIdle, nil
	}

	processed := current
	defer func() { p.sequence.Set(processed) }()

	for more := true; more && next <= available; next++ {
		var err error
		more, err = handler(p.ring.Get(next), next, next == available)
		if err != nil {
			return PollProcessing, &EventError{Sequence: next, Err: err}
		}
		processed = next
	}
	return PollProcessing, nil
}
