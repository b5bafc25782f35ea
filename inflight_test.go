package eduwire

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestCoalescingSharesOneNetworkCall(t *testing.T) {
	var attempts int64
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&attempts, 1)
		<-release
		w.Write([]byte(`{"success":true,"data":{"n":42}}`))
	}))
	defer server.Close()

	// Cache off so coalescing alone is under test.
	client := newTestClient(t, server.URL, WithoutCache())

	var group errgroup.Group
	results := make([]*Response, 2)
	for i := 0; i < 2; i++ {
		i := i
		group.Go(func() error {
			resp, err := client.Get(context.Background(), "/grades/")
			results[i] = resp
			return err
		})
	}

	// Let both callers enter before the server answers.
	time.Sleep(50 * time.Millisecond)
	close(release)
	require.NoError(t, group.Wait())

	assert.EqualValues(t, 1, atomic.LoadInt64(&attempts), "identical in-flight requests must share one call")
	assert.Equal(t, string(results[0].Data), string(results[1].Data))
	assert.Equal(t, 0, client.inflight.len())
}

func TestCoalescingDuplicateMutations(t *testing.T) {
	var attempts int64
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&attempts, 1)
		<-release
		w.Write([]byte(`{"id":7}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	body := map[string]string{"title": "Algebra"}

	var group errgroup.Group
	for i := 0; i < 2; i++ {
		group.Go(func() error {
			_, err := client.Post(context.Background(), "/courses/", body)
			return err
		})
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	require.NoError(t, group.Wait())

	assert.EqualValues(t, 1, atomic.LoadInt64(&attempts), "a duplicate submit must not reach the backend twice")
}

func TestDistinctBodiesAreNotCoalesced(t *testing.T) {
	key1, err := requestIdentity(&Request{Method: "POST", Path: "/courses/", Body: map[string]string{"title": "a"}})
	if err != nil {
		t.Fatal(err)
	}
	key2, err := requestIdentity(&Request{Method: "POST", Path: "/courses/", Body: map[string]string{"title": "b"}})
	if err != nil {
		t.Fatal(err)
	}

	if key1 == key2 {
		t.Error("different bodies must produce different identities")
	}
}

func TestRequestIdentityComponents(t *testing.T) {
	base := &Request{Method: "GET", Path: "/courses/"}
	sameKey, _ := requestIdentity(&Request{Method: "GET", Path: "/courses/"})
	baseKey, _ := requestIdentity(base)
	if baseKey != sameKey {
		t.Error("identical requests must share an identity")
	}

	otherMethod, _ := requestIdentity(&Request{Method: "DELETE", Path: "/courses/"})
	if baseKey == otherMethod {
		t.Error("method must participate in identity")
	}

	otherPath, _ := requestIdentity(&Request{Method: "GET", Path: "/courses/?page=2"})
	if baseKey == otherPath {
		t.Error("query string must participate in identity")
	}
}

func TestInflightTableSettleReleasesWaiters(t *testing.T) {
	table := newInflightTable()

	entry, owner := table.getOrCreate("k")
	if !owner {
		t.Fatal("first caller must own the entry")
	}

	waiter, waiterOwner := table.getOrCreate("k")
	if waiterOwner {
		t.Fatal("second caller must not own the entry")
	}
	if waiter != entry {
		t.Fatal("waiter must observe the owner's entry")
	}

	want := &Response{StatusCode: 200}
	go table.settle("k", entry, want, nil)

	got, err := waiter.Wait(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("waiter must observe the owner's outcome")
	}

	if table.len() != 0 {
		t.Error("entry must be removed the instant the call settles")
	}

	// A later caller starts fresh.
	_, owner = table.getOrCreate("k")
	if !owner {
		t.Error("a settled key must be claimable again")
	}
}

func TestInflightWaitHonorsCancellation(t *testing.T) {
	table := newInflightTable()
	entry, _ := table.getOrCreate("k")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := entry.Wait(ctx)
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
