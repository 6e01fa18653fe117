package sweep

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/mesh-simulator/internal/config"
	"github.com/signalsfoundry/mesh-simulator/internal/experiment"
	"github.com/signalsfoundry/mesh-simulator/internal/observability"
)

func testSweep(t *testing.T) config.Sweep {
	t.Helper()
	out := t.TempDir()
	return config.Sweep{
		Sizes:       []int{1, 2},
		Meshes:      []int{1},
		Losses:      []int{0, 10},
		Intervals:   []int{0, 3},
		MaxMemoryGB: 2,
		OutputDir:   out,
		SaveEvery:   1,
	}
}

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, key)
	return len(l.calls)
}

func (l *callLog) keys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func TestSpaceAndKeys(t *testing.T) {
	cfg := config.Sweep{Sizes: []int{1, 2, 2}, Meshes: []int{1, 3}, Losses: []int{0}, Intervals: []int{0, 6}}
	space := Space(cfg)
	if len(space) != 8 {
		t.Fatalf("space has %d combinations, want 8", len(space))
	}
	for _, c := range space {
		back, err := ParseKey(c.Key())
		if err != nil || back != c {
			t.Fatalf("ParseKey(%q) = %+v, %v", c.Key(), back, err)
		}
	}
	for _, bad := range []string{"", "1-2-3", "1-a-3-4", "1-2-3-4-5"} {
		if _, err := ParseKey(bad); err == nil {
			t.Fatalf("ParseKey(%q) accepted", bad)
		}
	}
}

func TestMemoryBuckets(t *testing.T) {
	tests := []struct {
		c    Combination
		want int
	}{
		{Combination{Size: 15, Mesh: 1}, 12},
		{Combination{Size: 14, Mesh: 1}, 8},
		{Combination{Size: 13, Mesh: 4}, 8},
		{Combination{Size: 9, Mesh: 2}, 4},
		{Combination{Size: 9, Mesh: 1}, 2},
		{Combination{Size: 8, Mesh: 4}, 2},
	}
	for _, tt := range tests {
		if got := MemoryGB(tt.c); got != tt.want {
			t.Fatalf("MemoryGB(%+v) = %d, want %d", tt.c, got, tt.want)
		}
	}

	combos := []Combination{{Size: 15}, {Size: 1}, {Size: 13}, {Size: 9, Mesh: 2}, {Size: 2}}
	buckets := Buckets(combos, 16, 1)
	wantPools := map[int]int{2: 8, 4: 4, 8: 2, 12: 1}
	if len(buckets) != 4 {
		t.Fatalf("got %d buckets, want 4", len(buckets))
	}
	for i, b := range buckets {
		if i > 0 && b.MemoryGB <= buckets[i-1].MemoryGB {
			t.Fatalf("buckets not ordered by memory: %+v", buckets)
		}
		if b.PoolSize != wantPools[b.MemoryGB] {
			t.Fatalf("bucket %d GB pool = %d, want %d", b.MemoryGB, b.PoolSize, wantPools[b.MemoryGB])
		}
	}
	if got := Buckets([]Combination{{Size: 15}}, 4, 1)[0].PoolSize; got != 1 {
		t.Fatalf("pool size below one bucket = %d, want 1", got)
	}
}

func TestBucketsShuffleDeterministic(t *testing.T) {
	cfg := config.Sweep{Sizes: []int{1, 2, 3, 4, 5}, Meshes: []int{1}, Losses: []int{0, 1, 2, 3}, Intervals: []int{0}}
	a := Buckets(Space(cfg), 16, 7)[0].Combinations
	b := Buckets(Space(cfg), 16, 7)[0].Combinations
	sorted := Space(cfg)
	same := true
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("shuffle not reproducible at %d", i)
		}
		if a[i] != sorted[i] {
			same = false
		}
	}
	if same {
		t.Fatalf("combinations were not shuffled")
	}
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", config.CheckpointFile)
	store := FileStore{Path: path}

	done, err := store.Load()
	if err != nil || len(done) != 0 {
		t.Fatalf("Load missing = %v, %v; want empty set", done, err)
	}
	want := map[string]bool{"1-1-0-0": true, "2-1-10-3": true}
	if err := store.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 || !got["1-1-0-0"] || !got["2-1-10-3"] {
		t.Fatalf("Load = %v, want %v", got, want)
	}

	if err := os.WriteFile(path, []byte("not a checkpoint"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := store.Load(); err == nil {
		t.Fatalf("corrupt checkpoint accepted")
	}
}

func TestSweepResumesAfterCancellation(t *testing.T) {
	cfg := testSweep(t)
	total := len(Space(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := &callLog{}
	sw, err := New(cfg, func(_ context.Context, c Combination) error {
		if first.add(c.Key()) == 3 {
			cancel()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := sw.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("first Run error = %v, want context.Canceled", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, DoneMarker)); !os.IsNotExist(err) {
		t.Fatalf("done marker written by an interrupted sweep: %v", err)
	}

	store := FileStore{Path: filepath.Join(cfg.OutputDir, config.CheckpointFile)}
	saved, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(saved) != len(first.keys()) || len(saved) < 3 || len(saved) >= total {
		t.Fatalf("checkpoint holds %d keys after %d runs", len(saved), len(first.keys()))
	}

	second := &callLog{}
	sw, err = New(cfg, func(_ context.Context, c Combination) error {
		second.add(c.Key())
		return nil
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := sw.Run(context.Background()); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	for _, key := range second.keys() {
		if saved[key] {
			t.Fatalf("combination %s ran again after resume", key)
		}
	}
	if got := len(saved) + len(second.keys()); got != total {
		t.Fatalf("ran %d combinations in total, want %d", got, total)
	}

	final, err := store.Load()
	if err != nil || len(final) != total {
		t.Fatalf("final checkpoint = %d keys, %v; want %d", len(final), err, total)
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, DoneMarker)); err != nil {
		t.Fatalf("done marker: %v", err)
	}
}

func TestSweepRetriesFailedCombinations(t *testing.T) {
	cfg := testSweep(t)
	cfg.MaxMemoryGB = 8
	failing := "2-1-10-3"
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewSweepCollector(reg)
	if err != nil {
		t.Fatalf("NewSweepCollector: %v", err)
	}

	sw, err := New(cfg, func(_ context.Context, c Combination) error {
		if c.Key() == failing {
			return errors.New("worker crashed")
		}
		return nil
	}, WithMetrics(metrics))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := sw.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	done, err := FileStore{Path: filepath.Join(cfg.OutputDir, config.CheckpointFile)}.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if done[failing] || len(done) != 7 {
		t.Fatalf("done = %v, want every combination but %s", done, failing)
	}
	if got := testutil.ToFloat64(metrics.Combinations.WithLabelValues("failed")); got != 1 {
		t.Fatalf("failed combinations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.Combinations.WithLabelValues("completed")); got != 7 {
		t.Fatalf("completed combinations = %v, want 7", got)
	}

	calls := &callLog{}
	sw, err = New(cfg, func(_ context.Context, c Combination) error {
		calls.add(c.Key())
		return nil
	}, WithMetrics(metrics))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := sw.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if keys := calls.keys(); len(keys) != 1 || keys[0] != failing {
		t.Fatalf("retry ran %v, want only %s", keys, failing)
	}
	if got := testutil.ToFloat64(metrics.Combinations.WithLabelValues("skipped")); got != 7 {
		t.Fatalf("skipped combinations = %v, want 7", got)
	}
	if got := testutil.ToFloat64(metrics.Progress); got != 1 {
		t.Fatalf("progress = %v, want 1", got)
	}
}

type countingStore struct {
	mu    sync.Mutex
	saves int
	last  map[string]bool
	err   error
}

func (s *countingStore) Load() (map[string]bool, error) { return map[string]bool{}, nil }

func (s *countingStore) Save(done map[string]bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.last = make(map[string]bool, len(done))
	for k := range done {
		s.last[k] = true
	}
	return s.err
}

func TestSweepSavesEveryN(t *testing.T) {
	cfg := testSweep(t)
	cfg.SaveEvery = 3
	store := &countingStore{}
	sw, err := New(cfg, func(context.Context, Combination) error { return nil }, WithStore(store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := sw.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// 8 combinations in one bucket: saves after 3 and 6, then on exit.
	if store.saves != 3 || len(store.last) != 8 {
		t.Fatalf("saves = %d with %d keys, want 3 saves of 8", store.saves, len(store.last))
	}
}

func TestSweepSaveErrorAborts(t *testing.T) {
	cfg := testSweep(t)
	boom := errors.New("disk full")
	store := &countingStore{err: boom}
	var calls callLog
	sw, err := New(cfg, func(_ context.Context, c Combination) error {
		calls.add(c.Key())
		return nil
	}, WithStore(store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = sw.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Run error = %v, want %v", err, boom)
	}
	if err.Error() != boom.Error() {
		t.Fatalf("Run error = %q, want a single %q", err.Error(), boom.Error())
	}
	// Pool size 1 and SaveEvery 1: the first save fails right after the
	// first combination, so nothing else starts.
	if got := calls.keys(); len(got) != 1 {
		t.Fatalf("combinations run = %v, want only the first", got)
	}
	// Periodic save plus the retry on exit.
	if store.saves != 2 {
		t.Fatalf("saves = %d, want 2", store.saves)
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, DoneMarker)); !os.IsNotExist(err) {
		t.Fatalf("done marker written after save failure")
	}
}

func TestSweepSaveRecoversOnExit(t *testing.T) {
	cfg := testSweep(t)
	boom := errors.New("disk full")
	store := &flakyStore{failures: 1, err: boom}
	sw, err := New(cfg, func(context.Context, Combination) error { return nil }, WithStore(store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := sw.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Run error = %v, want %v", err, boom)
	}
	if len(store.last) != 1 {
		t.Fatalf("saved %d keys on exit, want 1", len(store.last))
	}
}

type flakyStore struct {
	failures int
	err      error
	last     map[string]bool
}

func (s *flakyStore) Load() (map[string]bool, error) { return map[string]bool{}, nil }

func (s *flakyStore) Save(done map[string]bool) error {
	if s.failures > 0 {
		s.failures--
		return s.err
	}
	s.last = make(map[string]bool, len(done))
	for k := range done {
		s.last[k] = true
	}
	return nil
}

func TestNewRejectsInvalidSweep(t *testing.T) {
	if _, err := New(config.Sweep{}, func(context.Context, Combination) error { return nil }); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("New error = %v, want ErrInvalidConfig", err)
	}
	if _, err := New(testSweep(t), nil); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("New without run func error = %v", err)
	}
}

func TestMessageSizeRunner(t *testing.T) {
	cfg := config.Sweep{
		Sizes:          []int{1},
		Meshes:         []int{1},
		Losses:         []int{0},
		Intervals:      []int{2},
		OutputDir:      t.TempDir(),
		EffectiveTime:  40,
		SettlingBuffer: 1,
	}
	sw, err := New(cfg, MessageSizeRunner(cfg, experiment.Env{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := sw.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	runDir := filepath.Join(cfg.OutputDir, "1-1-0-2")
	for _, name := range []string{experiment.ResultFile, filepath.Join("routers", "1", "trace", "tx.msg")} {
		if _, err := os.Stat(filepath.Join(runDir, name)); err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}
	}
	if seedFor(1, Combination{Size: 1, Mesh: 1, Interval: 2}) == seedFor(1, Combination{Size: 1, Mesh: 1, Interval: 3}) {
		t.Fatalf("distinct combinations share a seed")
	}
}
