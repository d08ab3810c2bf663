package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/age-gender-ui/internal/display"
	"github.com/example/age-gender-ui/internal/imageprocessor"
	"github.com/example/age-gender-ui/internal/upload"
)

type okProcessor struct{}

func (okProcessor) Process(ctx context.Context, req imageprocessor.UploadRequest) ([]byte, error) {
	return []byte("processed"), nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestRegistry(store display.Store) (*Registry, *clock) {
	clk := &clock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	r := NewRegistry(func(id string) *upload.Controller {
		return upload.NewController(okProcessor{}, store, nil, zap.NewNop())
	}, zap.NewNop())
	r.now = clk.now
	return r, clk
}

func TestResolveCreatesAndReuses(t *testing.T) {
	r, _ := newTestRegistry(display.NewMemoryStore())

	s, created := r.Resolve("")
	require.True(t, created)
	require.NotEmpty(t, s.ID)

	again, created := r.Resolve(s.ID)
	assert.False(t, created)
	assert.Same(t, s, again)
	assert.Equal(t, 1, r.Len())
}

func TestResolveIgnoresUnknownIDs(t *testing.T) {
	r, _ := newTestRegistry(display.NewMemoryStore())

	s, created := r.Resolve("attacker-chosen")
	assert.True(t, created)
	assert.NotEqual(t, "attacker-chosen", s.ID)
}

func TestSessionsDoNotShareState(t *testing.T) {
	r, _ := newTestRegistry(display.NewMemoryStore())
	a, _ := r.Resolve("")
	b, _ := r.Resolve("")

	a.Theme.Toggle()
	a.Upload.SelectFile(context.Background(), &upload.File{Name: "a.jpg", Data: []byte("a")})

	assert.False(t, b.Theme.Dark())
	assert.Equal(t, upload.StateIdle, b.Upload.Snapshot().State)
}

func TestSweepEvictsIdleSessionsAndReleasesHandles(t *testing.T) {
	ctx := context.Background()
	store := display.NewMemoryStore()
	r, clk := newTestRegistry(store)

	idle, _ := r.Resolve("")
	idle.Upload.SelectFile(ctx, &upload.File{Name: "a.jpg", Data: []byte("a")})
	require.NoError(t, idle.Upload.Submit(ctx, nil))
	require.Equal(t, 1, store.Len())

	clk.t = clk.t.Add(20 * time.Minute)
	active, _ := r.Resolve("")

	clk.t = clk.t.Add(15 * time.Minute)
	evicted := r.Sweep(ctx, 30*time.Minute)

	assert.Equal(t, 1, evicted)
	assert.Equal(t, 0, store.Len())
	_, created := r.Resolve(active.ID)
	assert.False(t, created, "recently used session must survive")
}

func TestRunSweeperClosesSessionsOnShutdown(t *testing.T) {
	store := display.NewMemoryStore()
	r, _ := newTestRegistry(store)
	s, _ := r.Resolve("")
	s.Upload.SelectFile(context.Background(), &upload.File{Name: "a.jpg", Data: []byte("a")})
	require.NoError(t, s.Upload.Submit(context.Background(), nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.RunSweeper(ctx, time.Hour, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, store.Len())
}

func TestResolveAtCapEvictsLeastRecentlySeen(t *testing.T) {
	store := display.NewMemoryStore()
	r, clk := newTestRegistry(store)
	r.WithMaxSessions(2)
	ctx := context.Background()

	oldest, _ := r.Resolve("")
	oldest.Upload.SelectFile(ctx, &upload.File{Name: "a.jpg", Data: []byte("a")})
	require.NoError(t, oldest.Upload.Submit(ctx, nil))
	require.Equal(t, 1, store.Len())

	clk.t = clk.t.Add(time.Minute)
	recent, _ := r.Resolve("")

	clk.t = clk.t.Add(time.Minute)
	newest, created := r.Resolve("")
	require.True(t, created)

	assert.Equal(t, 2, r.Len())
	assert.NotContains(t, r.sessions, oldest.ID)
	assert.Contains(t, r.sessions, recent.ID)
	assert.Contains(t, r.sessions, newest.ID)
	assert.Equal(t, 0, store.Len(), "expected the evicted session to release its handle")
}
