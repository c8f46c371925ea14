package association

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/micahrl/cffunctions/internal/distribution"
)

type updateCall struct {
	ID   string
	ETag string
}

// fakeRemote is an in-memory control plane. Updates are guarded by ETag
// like the real API, and statuses are served from per-distribution scripts
// whose last value repeats.
type fakeRemote struct {
	mu        sync.Mutex
	snapshots map[string]*distribution.Snapshot
	statuses  map[string][]string
	fetchErr  map[string]error
	updateErr map[string]error
	statusErr map[string]error

	fetches      map[string]int
	statusPolls  map[string]int
	updates      []updateCall
	etagVersions int
}

func newFakeRemote(snaps ...*distribution.Snapshot) *fakeRemote {
	f := &fakeRemote{
		snapshots:   map[string]*distribution.Snapshot{},
		statuses:    map[string][]string{},
		fetchErr:    map[string]error{},
		updateErr:   map[string]error{},
		statusErr:   map[string]error{},
		fetches:     map[string]int{},
		statusPolls: map[string]int{},
	}
	for _, s := range snaps {
		f.snapshots[s.ID] = s
	}
	return f
}

func (f *fakeRemote) FetchDistribution(ctx context.Context, id string) (*distribution.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches[id]++
	if err := f.fetchErr[id]; err != nil {
		return nil, err
	}
	s, ok := f.snapshots[id]
	if !ok {
		return nil, fmt.Errorf("fetching distribution %s: %w", id, distribution.ErrNotFound)
	}
	return s.Clone(), nil
}

func (f *fakeRemote) UpdateDistribution(ctx context.Context, s *distribution.Snapshot) (*distribution.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, updateCall{ID: s.ID, ETag: s.ETag})
	if err := f.updateErr[s.ID]; err != nil {
		return nil, err
	}
	current := f.snapshots[s.ID]
	if current.ETag != s.ETag {
		return nil, fmt.Errorf("updating distribution %s: %w", s.ID, distribution.ErrPreconditionFailed)
	}
	f.etagVersions++
	next := s.Clone()
	next.ETag = fmt.Sprintf("%s-v%d", current.ETag, f.etagVersions)
	f.snapshots[s.ID] = next
	return next.Clone(), nil
}

func (f *fakeRemote) FetchDistributionStatus(ctx context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.statusErr[id]; err != nil {
		return "", err
	}
	script := f.statuses[id]
	if len(script) == 0 {
		return StatusDeployed, nil
	}
	n := f.statusPolls[id]
	f.statusPolls[id]++
	if n >= len(script) {
		n = len(script) - 1
	}
	return script[n], nil
}

func (f *fakeRemote) updateCalls() []updateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]updateCall(nil), f.updates...)
}

func noSleep(context.Context, time.Duration) error { return nil }

// steppingClock advances by step on every reading.
func steppingClock(step time.Duration) func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(step)
		return t
	}
}

func newTestEngine(t *testing.T, remote Remote) *Engine {
	e := NewEngine(remote, zaptest.NewLogger(t))
	e.Poller.sleep = noSleep
	e.Poller.now = steppingClock(time.Second)
	e.Poller.Timeout = time.Minute
	return e
}

func snapshot(id, etag string, patterns ...string) *distribution.Snapshot {
	s := &distribution.Snapshot{
		ID:              id,
		ETag:            etag,
		DefaultBehavior: distribution.Behavior{PathPattern: distribution.DefaultPattern, Bindings: []distribution.Binding{}},
		Behaviors:       []distribution.Behavior{},
	}
	for _, p := range patterns {
		s.Behaviors = append(s.Behaviors, distribution.Behavior{PathPattern: p, Bindings: []distribution.Binding{}})
	}
	return s
}
