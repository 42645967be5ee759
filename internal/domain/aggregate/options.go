package aggregate

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithPageSize overrides DefaultPageSize. Non-positive sizes are ignored.
func WithPageSize(size int) Option {
	return func(a *Aggregator) {
		if size > 0 {
			a.pageSize = size
		}
	}
}
