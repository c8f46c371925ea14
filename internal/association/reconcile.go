package association

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/micahrl/cffunctions/internal/distribution"
	"github.com/micahrl/cffunctions/internal/functions"
	"github.com/micahrl/cffunctions/internal/settle"
)

// Options controls a Reconcile run.
type Options struct {
	Action Action
	// Strict fails the run on missing distributions or unknown patterns
	// instead of skipping them.
	Strict bool
	// Concurrency bounds how many distributions are reconciled at once.
	// Zero means unbounded.
	Concurrency int
	// PollFailed also waits on distributions whose update failed, so the
	// log shows their current state. Their outcome is still a failure.
	PollFailed bool
}

// DistributionOutcome is a distribution that reconciled successfully.
type DistributionOutcome struct {
	DistributionID string
	Snapshot       *distribution.Snapshot
	Bindings       []ResolvedBinding
	Changed        bool
	Poll           PollResult
}

// DistributionFailure is a distribution that did not reconcile, and why.
type DistributionFailure struct {
	DistributionID string
	Bindings       []ResolvedBinding
	Err            error
}

// Report partitions a run's outcomes by distribution.
type Report struct {
	Action    Action
	Successes []DistributionOutcome
	Failures  []DistributionFailure
}

// Err combines every failure into one error, or returns nil.
func (r *Report) Err() error {
	var err error
	for _, f := range r.Failures {
		err = multierr.Append(err, f.Err)
	}
	return err
}

// Engine runs reconciliations against a Remote.
type Engine struct {
	Remote Remote
	Poller *Poller
	Logger *zap.Logger
}

// NewEngine returns an Engine polling with the default interval and timeout.
func NewEngine(remote Remote, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		Remote: remote,
		Poller: NewPoller(remote, log),
		Logger: log,
	}
}

// Reconcile builds the manifest and reconciles each distribution in its own
// task: apply, then wait for convergence if anything was written. Tasks never
// affect one another. The returned error is set only when the manifest could
// not be built, in which case nothing was written.
func (e *Engine) Reconcile(ctx context.Context, desired map[string][]DesiredBinding, deployed []functions.Summary, opts Options) (*Report, error) {
	manifest, err := BuildManifest(ctx, e.Remote, desired, deployed, opts.Strict, e.Logger)
	if err != nil {
		return nil, fmt.Errorf("building %s manifest: %w", opts.Action, err)
	}
	e.Logger.Info("reconciling distributions",
		zap.Stringer("action", opts.Action), zap.Int("distributions", len(manifest)))

	results := settle.All(ctx, opts.Concurrency, manifest, func(ctx context.Context, entry ManifestEntry) (DistributionOutcome, error) {
		return e.reconcileEntry(ctx, entry, opts)
	})

	report := &Report{Action: opts.Action}
	for i, r := range results {
		entry := manifest[i]
		if r.Err != nil {
			report.Failures = append(report.Failures, DistributionFailure{
				DistributionID: entry.Snapshot.ID,
				Bindings:       entry.Bindings,
				Err:            r.Err,
			})
			continue
		}
		report.Successes = append(report.Successes, r.Value)
	}
	return report, nil
}

func (e *Engine) reconcileEntry(ctx context.Context, entry ManifestEntry, opts Options) (DistributionOutcome, error) {
	id := entry.Snapshot.ID
	log := e.Logger.With(zap.String("distribution", id), zap.Stringer("action", opts.Action))
	out := DistributionOutcome{DistributionID: id, Bindings: entry.Bindings}

	for _, b := range entry.Bindings {
		log.Debug("binding",
			zap.String("function", b.FunctionARN),
			zap.String("pattern", b.PathPattern),
			zap.String("event", string(b.EventType)))
	}

	applied, err := Apply(ctx, e.Remote, entry, opts.Action)
	if err != nil {
		log.Error("failed to apply bindings", zap.Error(err))
		if opts.PollFailed {
			if res, perr := e.Poller.Poll(ctx, id); perr != nil {
				log.Debug("could not read status after failed update", zap.Error(perr))
			} else {
				log.Info("status after failed update", zap.Stringer("state", res.State), zap.String("status", res.Status))
			}
		}
		return out, err
	}
	out.Snapshot = applied.Snapshot
	out.Changed = applied.Changed

	if !applied.Changed {
		log.Info("bindings already up to date")
		return out, nil
	}
	log.Info("updated distribution", zap.String("etag", applied.Snapshot.ETag))

	res, err := e.Poller.Poll(ctx, id)
	out.Poll = res
	if err != nil {
		return out, err
	}
	switch res.State {
	case Deployed:
		return out, nil
	case TimedOut:
		return out, &PollTimeoutError{DistributionID: id, Timeout: e.Poller.Timeout, Status: res.Status}
	default:
		return out, &UnexpectedStatusError{DistributionID: id, Status: res.Status}
	}
}
