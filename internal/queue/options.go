package queue

// Option applies a configuration option to the Queue.
type Option func(*Queue)

// WithCapacity sets the fixed number of slots.
func WithCapacity(capacity int) Option {
	return func(q *Queue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}
