package scheduler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"pagewatch/internal/checker"
	"pagewatch/internal/fetcher"
	"pagewatch/internal/model"
	"pagewatch/internal/normalize"
	"pagewatch/internal/registry"
	"pagewatch/internal/snapshot"
	"pagewatch/internal/storage"
)

type mockNotifier struct {
	mu      sync.Mutex
	changes []model.ChangeEvent
	errors  []model.ErrorEvent
}

func (m *mockNotifier) NotifyChange(_ context.Context, ev model.ChangeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, ev)
	return nil
}

func (m *mockNotifier) NotifyError(_ context.Context, ev model.ErrorEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, ev)
	return nil
}

// mockHTTP serves a body per URL; unknown URLs get a 404.
type mockHTTP struct {
	mu     sync.Mutex
	bodies map[string]string
}

func (m *mockHTTP) set(url, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bodies[url] = body
}

func (m *mockHTTP) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	body, ok := m.bodies[req.URL.String()]
	m.mu.Unlock()
	code := http.StatusOK
	if !ok {
		code = http.StatusNotFound
	}
	return &http.Response{
		StatusCode: code,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}, nil
}

type pipeline struct {
	registry *registry.Registry
	snaps    *snapshot.Store
	http     *mockHTTP
	notifier *mockNotifier
	sched    *Scheduler
}

func newPipeline(t *testing.T, opts Options) *pipeline {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	snaps, err := snapshot.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new snapshot store: %v", err)
	}
	n, err := normalize.New(normalize.Options{IgnorePatterns: []string{"timestamp"}})
	if err != nil {
		t.Fatalf("new normalizer: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	p := &pipeline{
		snaps:    snaps,
		http:     &mockHTTP{bodies: map[string]string{}},
		notifier: &mockNotifier{},
	}
	p.registry = registry.New(store, snaps)
	c := checker.New(fetcher.New(p.http, fetcher.Options{}), n, snaps, p.registry, p.notifier,
		checker.Options{RetryAttempts: 1, NotifyOnError: true, IncludeDiff: true, MaxDiffLength: 500}, log)
	p.sched = New(p.registry, c, opts, log)
	return p
}

func (p *pipeline) add(t *testing.T, url string) {
	t.Helper()
	if _, err := p.registry.Add(context.Background(), registry.AddRequest{URL: url}); err != nil {
		t.Fatalf("add %s: %v", url, err)
	}
}

func kinds(outcomes []model.Outcome) []model.OutcomeKind {
	var ks []model.OutcomeKind
	for _, o := range outcomes {
		ks = append(ks, o.Kind)
	}
	return ks
}

func TestCheckAllDetectsChanges(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, Options{DefaultIntervalMinutes: 60})
	p.add(t, "https://a.example.com")
	p.add(t, "https://b.example.com")
	p.http.set("https://a.example.com", `<p>Alpha</p><i class="timestamp">1</i>`)
	p.http.set("https://b.example.com", `<p>Beta</p>`)

	got := kinds(p.sched.CheckAll(ctx))
	want := []model.OutcomeKind{model.OutcomeBaseline, model.OutcomeBaseline}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("first cycle (-want +got):\n%s", diff)
	}

	p.http.set("https://a.example.com", `<p>Alpha</p><i class="timestamp">2</i>`)
	p.http.set("https://b.example.com", `<p>Beta 2</p>`)
	sites, err := p.registry.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	got = kinds(p.sched.CheckSites(ctx, sites))
	want = []model.OutcomeKind{model.OutcomeUnchanged, model.OutcomeChanged}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("second cycle (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(1, len(p.notifier.changes)); diff != "" {
		t.Fatalf("change events (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("REMOVED: Beta\nADDED: Beta 2", p.notifier.changes[0].Diff); diff != "" {
		t.Errorf("diff (-want +got):\n%s", diff)
	}
}

func TestCheckAllSkipsSitesNotDue(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, Options{DefaultIntervalMinutes: 60})
	p.add(t, "https://a.example.com")
	p.http.set("https://a.example.com", "<p>a</p>")

	if got := p.sched.CheckAll(ctx); len(got) != 1 {
		t.Fatalf("first cycle checked %d sites, want 1", len(got))
	}
	if got := p.sched.CheckAll(ctx); len(got) != 0 {
		t.Errorf("second cycle checked %d sites, want 0", len(got))
	}
}

func TestCheckAllFailureIsolated(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, Options{DefaultIntervalMinutes: 60})
	p.add(t, "https://missing.example.com")
	p.add(t, "https://ok.example.com")
	p.http.set("https://ok.example.com", "<p>fine</p>")

	outcomes := p.sched.CheckAll(ctx)
	want := []model.OutcomeKind{model.OutcomeError, model.OutcomeBaseline}
	if diff := cmp.Diff(want, kinds(outcomes)); diff != "" {
		t.Errorf("outcomes (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(1, len(p.notifier.errors)); diff != "" {
		t.Errorf("error events (-want +got):\n%s", diff)
	}

	site, err := p.registry.Get(ctx, "https://missing.example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(model.StatusError, site.Status); diff != "" {
		t.Errorf("status (-want +got):\n%s", diff)
	}
	if site.LastAttemptAt == nil {
		t.Error("expected LastAttemptAt to be set after a failed check")
	}
}

func TestCheckAfterRenameKeepsName(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, Options{DefaultIntervalMinutes: 60})
	p.add(t, "https://a.example.com")
	p.http.set("https://a.example.com", "<p>a</p>")

	due, err := p.registry.Due(ctx, 60)
	if err != nil || len(due) != 1 {
		t.Fatalf("due: %v, %v", due, err)
	}
	if _, err := p.registry.Rename(ctx, due[0].ID, "Renamed"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, err := p.registry.SetInterval(ctx, due[0].ID, 15); err != nil {
		t.Fatalf("set interval: %v", err)
	}

	p.sched.CheckSites(ctx, due)

	site, err := p.registry.GetByID(ctx, due[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff("Renamed", site.Name); diff != "" {
		t.Errorf("name (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(15, site.IntervalMinutes); diff != "" {
		t.Errorf("interval (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(model.StatusOK, site.Status); diff != "" {
		t.Errorf("status (-want +got):\n%s", diff)
	}
}

func TestCheckAfterRemoveLeavesNoSnapshot(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, Options{DefaultIntervalMinutes: 60})
	p.add(t, "https://a.example.com")
	p.http.set("https://a.example.com", "<p>a</p>")

	due, err := p.registry.Due(ctx, 60)
	if err != nil || len(due) != 1 {
		t.Fatalf("due: %v, %v", due, err)
	}
	if removed, err := p.registry.Remove(ctx, "https://a.example.com"); err != nil || !removed {
		t.Fatalf("remove: %v, %v", removed, err)
	}

	got := kinds(p.sched.CheckSites(ctx, due))
	if diff := cmp.Diff([]model.OutcomeKind{model.OutcomeRemoved}, got); diff != "" {
		t.Errorf("outcomes (-want +got):\n%s", diff)
	}
	snap, err := p.snaps.Get("https://a.example.com")
	if err != nil || snap != nil {
		t.Errorf("expected no snapshot for removed site, got %+v, %v", snap, err)
	}

	// Re-adding starts from a fresh baseline.
	p.add(t, "https://a.example.com")
	got = kinds(p.sched.CheckAll(ctx))
	if diff := cmp.Diff([]model.OutcomeKind{model.OutcomeBaseline}, got); diff != "" {
		t.Errorf("re-added outcomes (-want +got):\n%s", diff)
	}
}

type fakeSource struct {
	sites []model.Site
}

func (f *fakeSource) Due(context.Context, int) ([]model.Site, error) {
	return f.sites, nil
}

type slowChecker struct {
	delay   time.Duration
	active  atomic.Int32
	maxSeen atomic.Int32
	calls   atomic.Int32
}

func (c *slowChecker) Check(_ context.Context, site *model.Site) model.Outcome {
	c.calls.Add(1)
	n := c.active.Add(1)
	for {
		m := c.maxSeen.Load()
		if n <= m || c.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(c.delay)
	c.active.Add(-1)
	return model.Outcome{SiteID: site.ID, Name: site.Name, Kind: model.OutcomeUnchanged}
}

func sitesN(n int) []model.Site {
	sites := make([]model.Site, n)
	for i := range sites {
		sites[i] = model.Site{ID: int64(i + 1), Name: string(rune('a' + i))}
	}
	return sites
}

func TestCheckSitesConcurrencyLimit(t *testing.T) {
	tests := []struct {
		name        string
		concurrency int
		wantMax     int32
	}{
		{name: "sequential", concurrency: 1, wantMax: 1},
		{name: "bounded parallel", concurrency: 3, wantMax: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &slowChecker{delay: 20 * time.Millisecond}
			log := slog.New(slog.NewTextHandler(io.Discard, nil))
			s := New(&fakeSource{sites: sitesN(6)}, c, Options{Concurrency: tt.concurrency}, log)

			outcomes := s.CheckAll(context.Background())
			if diff := cmp.Diff(6, len(outcomes)); diff != "" {
				t.Errorf("outcome count (-want +got):\n%s", diff)
			}
			if got := c.maxSeen.Load(); got > tt.wantMax {
				t.Errorf("max concurrent checks = %d, limit %d", got, tt.wantMax)
			}
			var ids []int64
			for _, o := range outcomes {
				ids = append(ids, o.SiteID)
			}
			if diff := cmp.Diff([]int64{1, 2, 3, 4, 5, 6}, ids); diff != "" {
				t.Errorf("outcomes must keep site order (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCheckSitesPolitenessDelay(t *testing.T) {
	c := &slowChecker{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(&fakeSource{sites: sitesN(3)}, c, Options{PolitenessDelay: 30 * time.Millisecond}, log)

	start := time.Now()
	s.CheckAll(context.Background())
	if elapsed := time.Since(start); elapsed < 55*time.Millisecond {
		t.Errorf("3 checks with a 30ms delay took %v, want at least 60ms", elapsed)
	}
}

func TestCheckAllCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := &slowChecker{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(&fakeSource{sites: sitesN(3)}, c, Options{}, log)

	outcomes := s.CheckAll(ctx)
	if diff := cmp.Diff(0, len(outcomes)); diff != "" {
		t.Errorf("expected no checks when context cancelled (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(int32(0), c.calls.Load()); diff != "" {
		t.Errorf("checker calls (-want +got):\n%s", diff)
	}
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(&fakeSource{}, &slowChecker{}, Options{Tick: 10 * time.Millisecond}, log)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
