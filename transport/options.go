package transport

import "time"

// Option is the type for a function option
type Option func(*Options)

// Options contains the parameters of the nats transport.
type Options struct {
	Server   string
	Port     int
	Subject  string
	Username string
	Password string
	Name     string
	Timeout  time.Duration
}

// Server is a functional option to set the address of the nats broker.
func Server(addr string) Option {
	return func(args *Options) {
		args.Server = addr
	}
}

// Port is a functional option to set the port of the nats broker.
func Port(port int) Option {
	return func(args *Options) {
		args.Port = port
	}
}

// Subject is a functional option to set the subject the audio is
// published on.
func Subject(s string) Option {
	return func(args *Options) {
		args.Subject = s
	}
}

// Username is a functional option to set the username for the broker.
func Username(u string) Option {
	return func(args *Options) {
		args.Username = u
	}
}

// Password is a functional option to set the password for the broker.
func Password(p string) Option {
	return func(args *Options) {
		args.Password = p
	}
}

// Name is a functional option to set the connection name shown by the
// broker.
func Name(n string) Option {
	return func(args *Options) {
		args.Name = n
	}
}

// Timeout is a functional option to set the connect timeout.
func Timeout(t time.Duration) Option {
	return func(args *Options) {
		args.Timeout = t
	}
}
