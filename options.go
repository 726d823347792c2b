package disruptor

import "log/slog"

// DefaultBufferSize is a reasonable ring size when nothing better is known.
const DefaultBufferSize = 1024

type config struct {
	producerType ProducerType
	waitStrategy WaitStrategy
	logger       *slog.Logger
}

func defaultConfig() config {
	return config{
		producerType: ProducerMulti,
		waitStrategy: NewBlockingWaitStrategy(),
		logger:       slog.Default(),
	}
}

// Option customizes a Disruptor.
type Option func(*config)

// WithProducerType selects the claim strategy. Defaults to ProducerMulti.
func WithProducerType(producerType ProducerType) Option {
	return func(c *config) {
		c.producerType = producerType
	}
}

// WithWaitStrategy sets how consumers wait for events. Defaults to
// BlockingWaitStrategy.
func WithWaitStrategy(waitStrategy WaitStrategy) Option {
	return func(c *config) {
		c.waitStrategy = waitStrategy
	}
}

// WithLogger sets the logger of the Disruptor and of its default exception
// handler.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}
