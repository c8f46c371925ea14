package association

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestPoller(t *testing.T, remote Remote, timeout time.Duration) *Poller {
	p := NewPoller(remote, zaptest.NewLogger(t))
	p.sleep = noSleep
	p.now = steppingClock(time.Second)
	p.Timeout = timeout
	return p
}

func TestPollReachesDeployed(t *testing.T) {
	remote := newFakeRemote()
	remote.statuses["D1"] = []string{"InProgress", "InProgress", "Deployed"}

	res, err := newTestPoller(t, remote, time.Minute).Poll(context.Background(), "D1")
	require.NoError(t, err)
	assert.Equal(t, Deployed, res.State)
	assert.Equal(t, 3, res.Polls)
}

func TestPollTimesOutWithoutError(t *testing.T) {
	remote := newFakeRemote()
	remote.statuses["D1"] = []string{"InProgress"}

	res, err := newTestPoller(t, remote, 10*time.Second).Poll(context.Background(), "D1")
	require.NoError(t, err)
	assert.Equal(t, TimedOut, res.State)
	assert.Equal(t, "InProgress", res.Status)
	assert.GreaterOrEqual(t, res.Elapsed, 10*time.Second)
	assert.Equal(t, 10, res.Polls)
}

func TestPollUnsetStatusKeepsWaiting(t *testing.T) {
	remote := newFakeRemote()
	remote.statuses["D1"] = []string{"", "", "Deployed"}

	res, err := newTestPoller(t, remote, time.Minute).Poll(context.Background(), "D1")
	require.NoError(t, err)
	assert.Equal(t, Deployed, res.State)
}

func TestPollUnexpectedStatus(t *testing.T) {
	remote := newFakeRemote()
	remote.statuses["D1"] = []string{"InProgress", "Disabled"}

	res, err := newTestPoller(t, remote, time.Minute).Poll(context.Background(), "D1")
	require.NoError(t, err)
	assert.Equal(t, Unexpected, res.State)
	assert.Equal(t, "Disabled", res.Status)
}

func TestPollStatusError(t *testing.T) {
	remote := newFakeRemote()
	remote.statusErr["D1"] = errors.New("access denied")

	_, err := newTestPoller(t, remote, time.Minute).Poll(context.Background(), "D1")
	assert.ErrorContains(t, err, "access denied")
}

func TestPollStopsOnContextCancel(t *testing.T) {
	remote := newFakeRemote()
	remote.statuses["D1"] = []string{"InProgress"}

	p := NewPoller(remote, zaptest.NewLogger(t))
	p.Interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Poll(ctx, "D1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPollStateString(t *testing.T) {
	assert.Equal(t, "TimedOut", TimedOut.String())
	assert.Equal(t, "Unknown", PollState(99).String())
}
