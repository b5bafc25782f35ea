package eduwire

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
)

// inflightEntry is the shared outcome of one physical network call, observed
// by every caller that issued an identical request while it was pending.
type inflightEntry struct {
	resp *Response
	err  error
	done chan struct{}
}

// Wait blocks until the owning call settles or ctx is cancelled.
func (e *inflightEntry) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-e.done:
		return e.resp, e.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// inflightTable maps request identity to the pending outcome. At most one
// physical call per identity is active at any time.
type inflightTable struct {
	mu      sync.Mutex
	entries map[string]*inflightEntry
}

func newInflightTable() *inflightTable {
	return &inflightTable{
		entries: make(map[string]*inflightEntry),
	}
}

// getOrCreate returns the pending entry for key, or creates one and marks the
// caller as owner.
func (t *inflightTable) getOrCreate(key string) (*inflightEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, exists := t.entries[key]; exists {
		return entry, false
	}

	entry := &inflightEntry{done: make(chan struct{})}
	t.entries[key] = entry
	return entry, true
}

// settle records the outcome, removes the entry, and releases waiters. The
// entry is removed the instant the call settles, never before and never late.
func (t *inflightTable) settle(key string, entry *inflightEntry, resp *Response, err error) {
	t.mu.Lock()
	if t.entries[key] == entry {
		delete(t.entries, key)
	}
	t.mu.Unlock()

	entry.resp = resp
	entry.err = err
	close(entry.done)
}

// len returns the number of pending entries.
func (t *inflightTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// requestIdentity derives the coalescing identity: method + endpoint +
// serialized body. Bodies are hashed so large payloads stay cheap to key.
func requestIdentity(req *Request) (string, error) {
	h := fnv.New64a()
	h.Write([]byte(req.Method))
	h.Write([]byte{0})
	h.Write([]byte(req.Path))

	if req.Body != nil {
		serialized, err := serializeBody(req.Body)
		if err != nil {
			return "", err
		}
		sum := sha256.Sum256(serialized)
		h.Write([]byte{0})
		h.Write(sum[:])
	}

	return fmt.Sprintf("%x", h.Sum64()), nil
}

// serializeBody renders a request body to its wire bytes.
func serializeBody(body interface{}) ([]byte, error) {
	switch b := body.(type) {
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return json.Marshal(b)
	}
}

// DefaultCoalesceCondition coalesces every method: for GETs it folds
// identical reads, for mutating verbs it shields the backend from duplicate
// submits caused by rapid UI re-renders.
func DefaultCoalesceCondition(req *Request) bool {
	return true
}
