package threadmq

// DefaultCapacity is the number of messages each direction of a bridge
// can hold in flight.
const DefaultCapacity = 256

// Option is the type for a function option
type Option func(*Options)

// Options contains the parameters of a bridge.
type Options struct {
	Capacity int
}

// Capacity is a functional option to set the capacity of both queues of
// the bridge.
func Capacity(n int) Option {
	return func(args *Options) {
		args.Capacity = n
	}
}
