package eduwire

import (
	"encoding/json"
	"testing"
	"time"
)

func TestInMemoryCacheSetGet(t *testing.T) {
	cache := NewInMemoryCache()

	entry := &CacheEntry{Data: json.RawMessage(`[1,2,3]`), StatusCode: 200}
	cache.Set("/courses/", entry, 0)

	got, ok := cache.Get("/courses/")
	if !ok {
		t.Fatal("expected a hit")
	}
	if string(got.Data) != `[1,2,3]` {
		t.Errorf("unexpected data %s", got.Data)
	}

	if _, ok := cache.Get("/grades/"); ok {
		t.Error("expected a miss for an unknown key")
	}
}

func TestInMemoryCacheTTL(t *testing.T) {
	cache := NewInMemoryCache()

	cache.Set("/courses/", &CacheEntry{Data: json.RawMessage(`1`)}, 20*time.Millisecond)
	if _, ok := cache.Get("/courses/"); !ok {
		t.Fatal("expected a hit before expiry")
	}

	time.Sleep(40 * time.Millisecond)
	if _, ok := cache.Get("/courses/"); ok {
		t.Error("expected a miss after expiry")
	}
}

func TestInMemoryCacheNoExpiryWithZeroTTL(t *testing.T) {
	cache := NewInMemoryCache()

	cache.Set("/courses/", &CacheEntry{Data: json.RawMessage(`1`)}, 0)

	time.Sleep(20 * time.Millisecond)
	if _, ok := cache.Get("/courses/"); !ok {
		t.Error("zero ttl must mean no automatic expiry")
	}
}

func TestInMemoryCacheInvalidateAndClear(t *testing.T) {
	cache := NewInMemoryCache()

	cache.Set("/courses/", &CacheEntry{Data: json.RawMessage(`1`)}, 0)
	cache.Set("/grades/", &CacheEntry{Data: json.RawMessage(`2`)}, 0)

	cache.Invalidate("/courses/")
	if _, ok := cache.Get("/courses/"); ok {
		t.Error("invalidated key must miss")
	}
	if _, ok := cache.Get("/grades/"); !ok {
		t.Error("other keys must survive invalidation")
	}

	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("expected empty cache after Clear, got %d entries", cache.Len())
	}
}

func TestCacheKeyIncludesQueryString(t *testing.T) {
	page1 := cacheKeyForRequest(&Request{Method: "GET", Path: "/courses/?page=1"})
	page2 := cacheKeyForRequest(&Request{Method: "GET", Path: "/courses/?page=2"})

	if page1 == page2 {
		t.Error("different query strings must cache separately")
	}
}

func TestExclusionCacheCondition(t *testing.T) {
	condition := NewExclusionCacheCondition(DefaultExcludedEndpoints)

	cases := []struct {
		method string
		path   string
		want   bool
	}{
		{"GET", "/courses/", true},
		{"GET", "/grades/?student=7", true},
		{"POST", "/courses/", false},
		{"DELETE", "/courses/3/", false},
		{"GET", "/auth/profile/", false},
		{"GET", "/users/", false},
		{"GET", "/users/42/", false},
		{"GET", "/users", false},
		{"GET", "/staff/", false},
		{"GET", "/tutors/9/schedule/", false},
	}

	for _, tc := range cases {
		got := condition(&Request{Method: tc.method, Path: tc.path})
		if got != tc.want {
			t.Errorf("condition(%s %s) = %v, want %v", tc.method, tc.path, got, tc.want)
		}
	}
}
