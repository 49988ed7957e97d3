package scheduler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"rss_digest/internal/fetcher"
	"rss_digest/internal/model"
	"rss_digest/internal/refresh"
	"rss_digest/internal/storage"
)

// mockHTTP serves one body per URL and counts requests.
type mockHTTP struct {
	mu     sync.Mutex
	bodies map[string]string
	calls  map[string]int
}

func newMockHTTP(bodies map[string]string) *mockHTTP {
	return &mockHTTP{bodies: bodies, calls: make(map[string]int)}
}

func (m *mockHTTP) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	url := req.URL.String()
	m.calls[url]++
	body, ok := m.bodies[url]
	if !ok {
		return &http.Response{StatusCode: 404, Body: io.NopCloser(bytes.NewBufferString("missing"))}, nil
	}
	return &http.Response{StatusCode: 200, Body: io.NopCloser(bytes.NewBufferString(body))}, nil
}

func (m *mockHTTP) callCount(url string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[url]
}

func loadFixture(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("../../testdata/sample.xml")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return string(data)
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createFeed(t *testing.T, store *storage.SQLite, owner, url string) *model.Feed {
	t.Helper()
	f := &model.Feed{Owner: owner, URL: url}
	if err := store.CreateFeed(context.Background(), f); err != nil {
		t.Fatalf("create feed: %v", err)
	}
	return f
}

func newScheduler(store *storage.SQLite, client fetcher.HTTPClient) *Scheduler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := refresh.New(fetcher.New(client), store, log, refresh.Options{Window: time.Hour})
	return New(store, orch, log, time.Minute)
}

func TestWarmOnceRefreshesOnePerURL(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	xml := loadFixture(t)

	const shared = "https://devops.example.com/rss"
	alice := createFeed(t, store, "alice", shared)
	bob := createFeed(t, store, "bob", shared)

	client := newMockHTTP(map[string]string{shared: xml})
	sum := newScheduler(store, client).WarmOnce(ctx)

	if diff := cmp.Diff(refresh.Summary{Succeeded: 1, Ingested: 5}, sum, cmpSummary); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(1, client.callCount(shared)); diff != "" {
		t.Errorf("fetch count mismatch (-want +got):\n%s", diff)
	}

	got, err := store.GetFeed(ctx, alice.ID)
	if err != nil {
		t.Fatalf("get feed: %v", err)
	}
	if got.LastFetched == nil {
		t.Fatal("expected representative feed to be marked fetched")
	}
	if diff := cmp.Diff("DevOps Weekly", got.Title); diff != "" {
		t.Errorf("title mismatch (-want +got):\n%s", diff)
	}

	// bob's record shares the URL, so it is fresh without its own fetch.
	latest, err := store.LatestFetchByURL(ctx, []string{bob.URL})
	if err != nil {
		t.Fatalf("latest fetch: %v", err)
	}
	if _, ok := latest[shared]; !ok {
		t.Error("expected shared URL to have a fetch time")
	}
}

func TestWarmOnceSkipsFreshURLs(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	const url = "https://devops.example.com/rss"
	createFeed(t, store, "alice", url)

	client := newMockHTTP(map[string]string{url: loadFixture(t)})
	sched := newScheduler(store, client)

	sched.WarmOnce(ctx)
	second := sched.WarmOnce(ctx)

	if diff := cmp.Diff(refresh.Summary{}, second, cmpSummary); diff != "" {
		t.Errorf("second cycle should be empty (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(1, client.callCount(url)); diff != "" {
		t.Errorf("fetch count mismatch (-want +got):\n%s", diff)
	}
}

func TestWarmOnceToleratesFailures(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	const good = "https://good.example.com/rss"
	const bad = "https://bad.example.com/rss"
	createFeed(t, store, "alice", good)
	down := createFeed(t, store, "alice", bad)

	client := newMockHTTP(map[string]string{good: loadFixture(t), bad: "not xml"})
	sum := newScheduler(store, client).WarmOnce(ctx)

	if diff := cmp.Diff(refresh.Summary{Succeeded: 1, Failed: 1, Ingested: 5}, sum, cmpSummary); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}

	got, err := store.GetFeed(ctx, down.ID)
	if err != nil {
		t.Fatalf("get feed: %v", err)
	}
	if got.LastFetched != nil {
		t.Error("failed feed must stay stale")
	}
}

func TestWarmOnceCancelledContext(t *testing.T) {
	store := newTestStore(t)
	const url = "https://example.com/rss"
	createFeed(t, store, "alice", url)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newMockHTTP(map[string]string{url: loadFixture(t)})
	newScheduler(store, client).WarmOnce(ctx)

	if diff := cmp.Diff(0, client.callCount(url)); diff != "" {
		t.Errorf("expected no fetch when context cancelled (-want +got):\n%s", diff)
	}
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	store := newTestStore(t)
	sched := newScheduler(store, newMockHTTP(nil))
	sched.SetTickInterval(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func TestNewDefaultsIntervalToWindow(t *testing.T) {
	store := newTestStore(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := refresh.New(fetcher.New(newMockHTTP(nil)), store, log, refresh.Options{Window: 2 * time.Hour})

	sched := New(store, orch, log, 0)
	if diff := cmp.Diff(2*time.Hour, sched.tick); diff != "" {
		t.Errorf("tick mismatch (-want +got):\n%s", diff)
	}
}

var cmpSummary = cmp.Comparer(func(a, b refresh.Summary) bool {
	return a.Succeeded == b.Succeeded && a.Failed == b.Failed && a.Ingested == b.Ingested
})
