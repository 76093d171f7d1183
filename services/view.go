package services

import (
	"context"
	"errors"
	"sync"
)

// ErrStale is returned when a response arrives after a newer request was
// started on the same view, or after the view was closed.
var ErrStale = errors.New("response discarded: view changed")

// View is the lifetime of one open builder or viewer page. Backend calls run
// under tickets; closing the view cancels every outstanding ticket, and only
// the newest ticket may apply its result.
type View struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	gen    uint64
	closed bool
}

func NewView(parent context.Context) *View {
	ctx, cancel := context.WithCancel(parent)
	return &View{ctx: ctx, cancel: cancel}
}

// Ticket is one backend round trip issued by a view.
type Ticket struct {
	view   *View
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
	stop   func() bool
}

// Begin starts a ticket whose context ends with either ctx or the view.
// Starting a ticket supersedes every earlier one.
func (v *View) Begin(ctx context.Context) *Ticket {
	tctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(v.ctx, cancel)

	v.mu.Lock()
	v.gen++
	gen := v.gen
	v.mu.Unlock()

	return &Ticket{view: v, gen: gen, ctx: tctx, cancel: cancel, stop: stop}
}

// Bind returns a context that ends with either ctx or the view, without
// superseding any ticket. Call release when done.
func (v *View) Bind(ctx context.Context) (context.Context, func()) {
	bctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(v.ctx, cancel)
	return bctx, func() {
		stop()
		cancel()
	}
}

func (t *Ticket) Context() context.Context {
	return t.ctx
}

// Current reports whether the ticket is still the newest of an open view.
func (t *Ticket) Current() bool {
	t.view.mu.Lock()
	defer t.view.mu.Unlock()
	return !t.view.closed && t.view.gen == t.gen
}

// Commit runs apply only if the ticket is still current. The check and the
// call happen under the view lock, so Close cannot interleave.
func (t *Ticket) Commit(apply func()) error {
	t.view.mu.Lock()
	defer t.view.mu.Unlock()
	if t.view.closed || t.view.gen != t.gen {
		return ErrStale
	}
	apply()
	return nil
}

// Done releases the ticket's resources.
func (t *Ticket) Done() {
	t.stop()
	t.cancel()
}

// Close cancels every outstanding ticket. Results arriving later are
// discarded.
func (v *View) Close() {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
	v.cancel()
}

func (v *View) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}
