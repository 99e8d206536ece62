package enrich

import (
	"context"
	"sync"
)

// Token is a cooperative cancellation flag shared by everything started for one load.
type Token struct {
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// NewToken returns a live token derived from parent.
func NewToken(parent context.Context) *Token {
	ctx, cancel := context.WithCancel(parent)
	return &Token{ctx: ctx, cancel: cancel}
}

// Cancel marks the token cancelled. It is safe to call more than once.
func (t *Token) Cancel() {
	t.once.Do(t.cancel)
}

// Cancelled reports whether Cancel was called or the parent context ended.
func (t *Token) Cancelled() bool {
	return t.ctx.Err() != nil
}

// Context is cancelled together with the token.
func (t *Token) Context() context.Context {
	return t.ctx
}

// Done is closed once the token is cancelled.
func (t *Token) Done() <-chan struct{} {
	return t.ctx.Done()
}
