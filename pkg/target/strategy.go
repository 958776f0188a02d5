package target

import "context"

// Instance is something a test started and must stop: a simulator or a
// debug server.
type Instance interface {
	// LogNames lists the log files worth showing when a test fails.
	LogNames() []string
	Close() error
}

// Server is a running debug server gdb connects to.
type Server interface {
	Instance
	GDBPorts() []int
	// SMP reports whether the server groups the harts into one SMP target.
	SMP() bool
}

// ServerOptions tune a server start for one test.
type ServerOptions struct {
	// FreeRTOS asks the server to expose FreeRTOS threads.
	FreeRTOS bool
	// CLI opens the server's command console instead of waiting for its
	// gdb ports.
	CLI bool
}

// Strategy brings a target up. Create may return a nil Instance for
// hardware that is already running.
type Strategy interface {
	Create(ctx context.Context) (Instance, error)
	Server(ctx context.Context, opts ServerOptions) (Server, error)
}
