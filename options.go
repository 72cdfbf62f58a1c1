package grove

import "go.uber.org/zap"

const defaultMaxDepth = 512

// settings holds the container-wide configuration shared by a root container
// and every child created from it.
type settings struct {
	logger   *zap.Logger
	metrics  *Metrics
	maxDepth int
}

// Option configures a container created with [New].
type Option func(*settings)

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records construction counts, resolve latency and disposals on
// m. See [NewMetrics].
func WithMetrics(m *Metrics) Option {
	return func(s *settings) {
		s.metrics = m
	}
}

// WithMaxDepth bounds how deeply one object graph may nest before resolution
// fails with [ErrDepthExceeded]. The default is 512.
func WithMaxDepth(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxDepth = n
		}
	}
}

func newSettings(opts []Option) *settings {
	s := &settings{
		logger:   zap.NewNop(),
		maxDepth: defaultMaxDepth,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
