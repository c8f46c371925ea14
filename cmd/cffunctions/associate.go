package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/micahrl/cffunctions/internal/association"
	"github.com/micahrl/cffunctions/internal/config"
	"github.com/micahrl/cffunctions/internal/distribution"
	"github.com/micahrl/cffunctions/internal/functions"
	"github.com/micahrl/cffunctions/internal/report"
)

var (
	pollInterval time.Duration
	pollTimeout  time.Duration
	pollFailed   bool
)

var associateCmd = &cobra.Command{
	Use:   "associate",
	Short: "Attach LIVE functions to the distribution behaviors in the project file",
	Long: `associate reads every distribution named in the project file, adds the
configured function associations to its cache behaviors, and waits for each
changed distribution to finish deploying.

Every distribution and behavior pattern must exist; otherwise nothing is
changed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReconcile(cmd, association.Options{Action: association.Associate, Strict: true})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{associateCmd, destroyCmd} {
		cmd.Flags().DurationVar(&pollInterval, "poll-interval", association.DefaultPollInterval, "time between distribution status checks")
		cmd.Flags().DurationVar(&pollTimeout, "poll-timeout", association.DefaultPollTimeout, "how long to wait for a distribution to deploy")
		cmd.Flags().BoolVar(&pollFailed, "poll-failed", false, "also wait on distributions whose update failed")
	}
}

func newEngine(c *clients) *association.Engine {
	e := association.NewEngine(distribution.NewCloudFront(c.cf), logger)
	e.Poller.Interval = pollInterval
	e.Poller.Timeout = pollTimeout
	return e
}

// reconcile lists the LIVE functions and runs one association pass. The
// error is set only when the pass could not start, e.g. the manifest failed
// to build; nothing has been written then. Per-distribution failures are in
// the report.
func reconcile(ctx context.Context, cfg *config.Config, c *clients, opts association.Options) (*association.Report, error) {
	live, err := functions.List(ctx, c.cf, functions.Live)
	if err != nil {
		return nil, err
	}
	logger.Debug("listed live functions", zap.Int("count", len(live)))

	opts.Concurrency = concurrency
	opts.PollFailed = pollFailed
	return newEngine(c).Reconcile(ctx, cfg.DesiredBindings(), live, opts)
}

// printReconcile writes the report and folds its failures into one error.
func printReconcile(w io.Writer, r *association.Report) error {
	report.Associations(w, r)
	if err := r.Err(); err != nil {
		return fmt.Errorf("%d of %d distributions failed to %s: %w",
			len(r.Failures), len(r.Failures)+len(r.Successes), r.Action, err)
	}
	return nil
}

func runReconcile(cmd *cobra.Command, opts association.Options) error {
	ctx := cmd.Context()
	cfg, c, err := setup(ctx)
	if err != nil {
		return err
	}
	r, err := reconcile(ctx, cfg, c, opts)
	if err != nil {
		return err
	}
	return printReconcile(cmd.OutOrStdout(), r)
}
