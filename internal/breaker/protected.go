// protected.go: Typed call wrapper over a breaker
package breaker

import "context"

// Protected wraps a typed outbound operation behind a breaker. It replaces a
// decorator mechanism with an explicit higher-order call: the same capability
// with no dynamic dispatch.
type Protected[T any] struct {
	breaker *Breaker
}

// NewProtected binds a result type to a breaker.
func NewProtected[T any](b *Breaker) Protected[T] {
	return Protected[T]{breaker: b}
}

// Call executes op under the breaker and returns its typed result. On
// rejection or timeout the zero value is returned alongside the typed error.
func (p Protected[T]) Call(ctx context.Context, op func(context.Context) (T, error)) (T, error) {
	// Buffered so an abandoned (timed-out) operation can still complete its
	// send without leaking a goroutine; the value is simply never read.
	results := make(chan T, 1)

	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		results <- v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return <-results, nil
}
