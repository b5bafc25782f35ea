package singleflight

import (
	"context"
	"sync"
)

// Group manages a set of in-flight calls so that only one execution runs per
// key at a time. Duplicate callers wait for the original to settle and
// receive the same results. The entry is removed the instant the owning call
// settles, so a caller arriving afterwards starts a fresh execution.
type Group struct {
	mu sync.Mutex
	m  map[string]*call
}

// call represents an active function call and its eventual outcome.
type call struct {
	done chan struct{}
	val  interface{}
	err  error
}

// New creates a new singleflight Group.
func New() *Group {
	return &Group{
		m: make(map[string]*call),
	}
}

// Do executes fn, ensuring only one execution is in-flight for key at a time.
// A duplicate caller blocks until the owner settles or its context is
// cancelled; cancellation abandons the wait but not the owning call.
func (g *Group) Do(ctx context.Context, key string, fn func() (interface{}, error)) (interface{}, error) {
	g.mu.Lock()
	if c, ok := g.m[key]; ok {
		g.mu.Unlock()
		select {
		case <-c.done:
			return c.val, c.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c := &call{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	c.val, c.err = fn()

	g.mu.Lock()
	if g.m[key] == c {
		delete(g.m, key)
	}
	g.mu.Unlock()
	close(c.done)

	return c.val, c.err
}

// InFlight reports whether a call with the given key is currently executing.
func (g *Group) InFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.m[key]
	return ok
}

// Forget removes key from the group, allowing a future call with the same key
// to execute even if a previous call is still in progress.
func (g *Group) Forget(key string) {
	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()
}
