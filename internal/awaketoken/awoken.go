package awaketoken

import "context"

// Done returns a channel that is closed once the token is awoken. Each call
// may return a different channel if the observer hasn't registered yet;
// once registered, repeated calls return the same channel until release.
func (a *AwokenToken) Done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.doneLocked()
}

func (a *AwokenToken) doneLocked() <-chan struct{} {
	if a.token.TryAwoken() {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	if a.got {
		return a.ch
	}
	ch, id, awake := a.token.register()
	if awake {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	a.ch, a.id, a.got = ch, id, true
	return a.ch
}

// Wait blocks until the token is awoken or ctx is done, whichever happens
// first. On context cancellation the observer's registration is released
// and ctx.Err() is returned without marking the token awoken.
func (a *AwokenToken) Wait(ctx context.Context) error {
	done := a.Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		a.Release()
		return ctx.Err()
	}
}

// Release removes this observer's waiter slot, if any. Safe to call
// multiple times and after the token has already awoken.
func (a *AwokenToken) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.got {
		a.token.release(a.id)
	}
}
