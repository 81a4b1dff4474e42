package domain

import "context"

// Dispatcher hands one SMS to the outbound transport. Any returned error is a
// dispatch failure; provider specific codes are not interpreted.
type Dispatcher interface {
	Dispatch(ctx context.Context, to, from, body string) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, to, from, body string) error

func (f DispatcherFunc) Dispatch(ctx context.Context, to, from, body string) error {
	return f(ctx, to, from, body)
}
