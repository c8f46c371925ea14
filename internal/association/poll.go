package association

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPollInterval = time.Second
	DefaultPollTimeout  = 10 * time.Minute

	StatusInProgress = "InProgress"
	StatusDeployed   = "Deployed"
)

// PollState is where a distribution's convergence wait ended up.
type PollState int

const (
	Unknown PollState = iota
	InProgress
	Deployed
	TimedOut
	Unexpected
)

func (s PollState) String() string {
	switch s {
	case InProgress:
		return "InProgress"
	case Deployed:
		return "Deployed"
	case TimedOut:
		return "TimedOut"
	case Unexpected:
		return "Unexpected"
	default:
		return "Unknown"
	}
}

// PollResult describes a finished Poll.
type PollResult struct {
	State   PollState
	Status  string
	Polls   int
	Elapsed time.Duration
}

// Poller waits for distributions to report "Deployed".
type Poller struct {
	Remote   Remote
	Interval time.Duration
	Timeout  time.Duration
	Logger   *zap.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewPoller returns a Poller with the default interval and timeout.
func NewPoller(remote Remote, log *zap.Logger) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		Remote:   remote,
		Interval: DefaultPollInterval,
		Timeout:  DefaultPollTimeout,
		Logger:   log,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Poll re-reads the distribution's status every Interval while it is unset or
// InProgress. It ends Deployed, TimedOut once Timeout has elapsed, or
// Unexpected for any other status. TimedOut and Unexpected are results, not
// errors; an error is returned only when a status read fails or ctx ends.
//
// The deadline is checked once per iteration, so a slow status call can
// overrun Timeout.
func (p *Poller) Poll(ctx context.Context, id string) (PollResult, error) {
	log := p.Logger.With(zap.String("distribution", id))
	start := p.now()
	res := PollResult{State: Unknown}

	for {
		if err := p.sleep(ctx, p.Interval); err != nil {
			return res, err
		}

		status, err := p.Remote.FetchDistributionStatus(ctx, id)
		res.Polls++
		if err != nil {
			return res, fmt.Errorf("polling distribution %s: %w", id, err)
		}
		res.Status = status
		res.Elapsed = p.now().Sub(start)

		switch status {
		case StatusDeployed:
			res.State = Deployed
			log.Info("distribution deployed", zap.Duration("elapsed", res.Elapsed))
			return res, nil
		case "", StatusInProgress:
			if status != "" {
				res.State = InProgress
			}
			if res.Elapsed >= p.Timeout {
				res.State = TimedOut
				log.Warn("distribution not deployed before timeout",
					zap.String("status", status), zap.Duration("timeout", p.Timeout))
				return res, nil
			}
			log.Debug("waiting for distribution", zap.String("status", status), zap.Duration("elapsed", res.Elapsed))
		default:
			res.State = Unexpected
			log.Warn("distribution reported unexpected status", zap.String("status", status))
			return res, nil
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
