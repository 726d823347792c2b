package disruptor

import "slices"

// EventHandlerGroup is a set of consumers of a Disruptor, used to declare
// what the next consumers depend on.
type EventHandlerGroup[T any] struct {
	disruptor *Disruptor[T]
	sequences []*Sequence
}

// And combines this group with others.
func (g *EventHandlerGroup[T]) And(others ...*EventHandlerGroup[T]) *EventHandlerGroup[T] {
	seqs := slices.Clone(g.sequences)
	for _, o := range others {
		seqs = append(seqs, o.sequences...)
	}
	return g.disruptor.newGroup(seqs)
}

// AndProcessors combines this group with processors, registering the ones
// the Disruptor does not know yet.
func (g *EventHandlerGroup[T]) AndProcessors(processors ...EventProcessor) (*EventHandlerGroup[T], error) {
	other, err := g.disruptor.AfterProcessors(processors...)
	if err != nil {
		return nil, err
	}
	return g.And(other), nil
}

// Then adds handlers that only see an event after every consumer of this
// group has processed it.
func (g *EventHandlerGroup[T]) Then(handlers ...EventHandler[T]) (*EventHandlerGroup[T], error) {
	return g.HandleEventsWith(handlers...)
}

func (g *EventHandlerGroup[T]) ThenHandleEventsWithWorkerPool(handlers ...WorkHandler[T]) (*EventHandlerGroup[T], error) {
	return g.HandleEventsWithWorkerPool(handlers...)
}

func (g *EventHandlerGroup[T]) HandleEventsWith(handlers ...EventHandler[T]) (*EventHandlerGroup[T], error) {
	return g.disruptor.createEventProcessors(g.sequences, handlers)
}

func (g *EventHandlerGroup[T]) HandleEventsWithFactories(factories ...EventProcessorFactory[T]) (*EventHandlerGroup[T], error) {
	return g.disruptor.createEventProcessorsFromFactories(g.sequences, factories)
}

// HandleEventsWithProcessors adds processors that were built on
// AsSequenceBarrier; they replace this group as the end of the chain.
func (g *EventHandlerGroup[T]) HandleEventsWithProcessors(processors ...EventProcessor) (*EventHandlerGroup[T], error) {
	return g.disruptor.addProcessors(g.sequences, processors)
}

func (g *EventHandlerGroup[T]) HandleEventsWithWorkerPool(handlers ...WorkHandler[T]) (*EventHandlerGroup[T], error) {
	return g.disruptor.createWorkerPool(g.sequences, handlers)
}

// AsSequenceBarrier creates a barrier over the consumers of this group, for
// processors built outside the Disruptor.
func (g *EventHandlerGroup[T]) AsSequenceBarrier() SequenceBarrier {
	return g.disruptor.ring.NewBarrier(g.sequences...)
}

func (g *EventHandlerGroup[T]) Sequences() []*Sequence {
	return slices.Clone(g.sequences)
}
