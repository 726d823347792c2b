package disruptor

import (
	"errors"
	"runtime"
	"sync"
	"testing"

	"github.com/valyala/fastrand"
)

type valueEvent struct {
	value int64
}

func newValueEvent() valueEvent { return valueEvent{} }

func TestRingBufferPublishAndGet(t *testing.T) {
	rb := NewSingleProducer(newValueEvent, 8, NewBusySpinWaitStrategy())

	for i := 0; i < 5; i++ {
		rb.PublishEvent(func(e *valueEvent, seq int64) {
			e.value = seq + 100
		})
	}

	if c := rb.Cursor(); c != 4 {
		t.Fatalf("expected cursor 4, got %d", c)
	}
	for seq := int64(0); seq < 5; seq++ {
		if !rb.IsPublished(seq) {
			t.Fatalf("sequence %d not published", seq)
		}
		if v := rb.Get(seq).value; v != seq+100 {
			t.Fatalf("expected %d at %d, got %d", seq+100, seq, v)
		}
	}

	// Same slot one lap later.
	if rb.Get(1) != rb.Get(9) {
		t.Fatalf("sequences 1 and 9 must share a slot in a ring of 8")
	}
}

func TestRingBufferPreallocatesEntries(t *testing.T) {
	calls := 0
	rb := NewMultiProducer(func() []byte {
		calls++
		return make([]byte, 0, 64)
	}, 16, NewBusySpinWaitStrategy())

	if calls != 16 {
		t.Fatalf("expected factory to run once per slot, ran %d times", calls)
	}
	if c := cap(*rb.Get(3)); c != 64 {
		t.Fatalf("expected pre-allocated entry, got capacity %d", c)
	}
	if rb.BufferSize() != 16 {
		t.Fatalf("expected buffer size 16, got %d", rb.BufferSize())
	}
}

func TestRingBufferTryPublishWhenFull(t *testing.T) {
	const capacity = 4
	rb := NewMultiProducer(newValueEvent, capacity, NewBusySpinWaitStrategy())
	consumer := NewSequence(InitialSequenceValue)
	rb.AddGatingSequences(consumer)

	for i := 0; i < capacity; i++ {
		if err := rb.TryPublishEvent(func(e *valueEvent, seq int64) { e.value = seq }); err != nil {
			t.Fatalf("try publish failed at %d: %v", i, err)
		}
	}
	err := rb.TryPublishEvent(func(e *valueEvent, seq int64) {
		t.Fatalf("translator called for a slot that was never claimed")
	})
	if !errors.Is(err, ErrInsufficientCapacity) {
		t.Fatalf("expected ErrInsufficientCapacity, got %v", err)
	}
	if rb.HasAvailableCapacity(1) {
		t.Fatalf("full ring reports capacity")
	}

	consumer.Set(1)
	if r := rb.RemainingCapacity(); r != 2 {
		t.Fatalf("expected 2 free slots, got %d", r)
	}
	if err := rb.TryPublishEvents(
		func(e *valueEvent, seq int64) { e.value = seq },
		func(e *valueEvent, seq int64) { e.value = seq },
		func(e *valueEvent, seq int64) { e.value = seq },
	); !errors.Is(err, ErrInsufficientCapacity) {
		t.Fatalf("expected a batch of 3 to be refused, got %v", err)
	}
	if rb.MinimumGatingSequence() != 1 {
		t.Fatalf("expected minimum gating sequence 1, got %d", rb.MinimumGatingSequence())
	}
}

func TestRingBufferPublishEventsBatch(t *testing.T) {
	rb := NewMultiProducer(newValueEvent, 8, NewBusySpinWaitStrategy())

	rb.PublishEvents(
		func(e *valueEvent, seq int64) { e.value = 10 },
		func(e *valueEvent, seq int64) { e.value = 20 },
		func(e *valueEvent, seq int64) { e.value = 30 },
	)
	PublishEventsWith(rb, func(e *valueEvent, seq int64, arg int64) { e.value = arg }, []int64{40, 50})
	PublishEventWith(rb, func(e *valueEvent, seq int64, arg int64) { e.value = arg }, 60)
	if err := TryPublishEventWith(rb, func(e *valueEvent, seq int64, arg int64) { e.value = arg }, 70); err != nil {
		t.Fatalf("try publish with arg: %v", err)
	}

	if c := rb.Cursor(); c != 6 {
		t.Fatalf("expected cursor 6, got %d", c)
	}
	for seq := int64(0); seq <= 6; seq++ {
		if v := rb.Get(seq).value; v != (seq+1)*10 {
			t.Fatalf("expected %d at %d, got %d", (seq+1)*10, seq, v)
		}
	}

	// Empty batches claim nothing.
	rb.PublishEvents()
	PublishEventsWith(rb, func(e *valueEvent, seq int64, arg int64) {}, nil)
	if c := rb.Cursor(); c != 6 {
		t.Fatalf("empty batch moved the cursor to %d", c)
	}
}

// A panicking translator must not leave its slot claimed forever.
func TestRingBufferPublishesAfterTranslatorPanic(t *testing.T) {
	rb := NewMultiProducer(newValueEvent, 8, NewBusySpinWaitStrategy())

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected translator panic to propagate")
			}
		}()
		rb.PublishEvent(func(e *valueEvent, seq int64) {
			panic("boom")
		})
	}()

	if !rb.IsPublished(0) {
		t.Fatalf("slot 0 not published after translator panic")
	}
	barrier := rb.NewBarrier()
	if v, err := barrier.WaitFor(0); err != nil || v != 0 {
		t.Fatalf("expected barrier to reach 0, got %d, %v", v, err)
	}
}

func TestRingBufferResetTo(t *testing.T) {
	for _, producerType := range []ProducerType{ProducerSingle, ProducerMulti} {
		rb := NewRingBuffer(producerType, newValueEvent, 8, NewBusySpinWaitStrategy())
		rb.ResetTo(5)
		if c := rb.Cursor(); c != 5 {
			t.Fatalf("%s: expected cursor 5 after reset, got %d", producerType, c)
		}
		if !rb.IsPublished(5) {
			t.Fatalf("%s: sequence 5 not published after reset", producerType)
		}
		if seq := rb.Next(); seq != 6 {
			t.Fatalf("%s: expected next claim 6, got %d", producerType, seq)
		}
	}
}

// Concurrent test: many producers, one consumer behind a barrier.
// Checks that all values [0..N) are received exactly once.
func TestRingBufferConcurrentProducers(t *testing.T) {
	const (
		capacity    = 1 << 10
		N           = 200_000
		producers   = 8
		perProducer = N / producers
	)

	rb := NewMultiProducer(newValueEvent, capacity, NewYieldingWaitStrategy())
	consumed := NewSequence(InitialSequenceValue)
	rb.AddGatingSequences(consumed)
	barrier := rb.NewBarrier()

	// seen[i] == how many times we saw value i
	seen := make([]int32, N)

	var wg sync.WaitGroup

	// Consumer
	wg.Add(1)
	go func() {
		defer wg.Done()
		next := int64(0)
		for next < N {
			available, err := barrier.WaitFor(next)
			if err != nil {
				t.Errorf("wait for %d: %v", next, err)
				return
			}
			for ; next <= available; next++ {
				seen[rb.Get(next).value]++
			}
			consumed.Set(available)
		}
	}()

	// Producers
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(p int) {
			defer wg.Done()
			start := p * perProducer
			for i := start; i < start+perProducer; i++ {
				rb.PublishEvent(func(e *valueEvent, _ int64) {
					e.value = int64(i)
				})
				if fastrand.Uint32n(512) == 0 {
					runtime.Gosched()
				}
			}
		}(p)
	}

	wg.Wait()

	for i := 0; i < N; i++ {
		if seen[i] != 1 {
			t.Fatalf("value %d seen %d times (expected 1)", i, seen[i])
		}
	}
}

// Benchmark: single producer, single consumer.
func BenchmarkRingBuffer_1P1C(b *testing.B) {
	const capacity = 1 << 16
	rb := NewSingleProducer(newValueEvent, capacity, NewBusySpinWaitStrategy())
	consumed := NewSequence(InitialSequenceValue)
	rb.AddGatingSequences(consumed)
	barrier := rb.NewBarrier()

	done := make(chan struct{})

	// Consumer
	go func() {
		defer close(done)
		next := int64(0)
		for next < int64(b.N) {
			available, err := barrier.WaitFor(next)
			if err != nil {
				return
			}
			next = available + 1
			consumed.Set(available)
		}
	}()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rb.PublishEvent(func(e *valueEvent, seq int64) {
			e.value = seq
		})
	}
	<-done
	b.StopTimer()
}

// Benchmark: many producers, one consumer.
func BenchmarkRingBuffer_MP1C(b *testing.B) {
	const capacity = 1 << 16
	rb := NewMultiProducer(newValueEvent, capacity, NewYieldingWaitStrategy())
	consumed := NewSequence(InitialSequenceValue)
	rb.AddGatingSequences(consumed)
	barrier := rb.NewBarrier()

	done := make(chan struct{})
	go func() {
		defer close(done)
		next := int64(0)
		for next < int64(b.N) {
			available, err := barrier.WaitFor(next)
			if err != nil {
				return
			}
			next = available + 1
			consumed.Set(available)
		}
	}()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			rb.PublishEvent(func(e *valueEvent, seq int64) {
				e.value = seq
			})
		}
	})
	<-done
	b.StopTimer()
}
