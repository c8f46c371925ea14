package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/micahrl/cffunctions/internal/functions"
	"github.com/micahrl/cffunctions/internal/report"
	"github.com/micahrl/cffunctions/internal/settle"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish every configured function from DEVELOPMENT to LIVE",
	Args:  cobra.NoArgs,
	RunE:  runPublish,
}

func runPublish(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, c, err := setup(ctx)
	if err != nil {
		return err
	}

	names := cfg.FunctionNames()
	results := settle.All(ctx, concurrency, names, func(ctx context.Context, name string) (functions.Result, error) {
		res, err := functions.Publish(ctx, c.cf, name)
		if err != nil {
			logger.Error("failed to publish function", zap.String("function", name), zap.Error(err))
			return res, err
		}
		logger.Info("published function", zap.String("function", name), zap.String("arn", res.ARN))
		return res, nil
	})

	outcomes := make([]report.FunctionOutcome, len(names))
	for i, r := range results {
		outcomes[i] = report.FunctionOutcome{Name: names[i], Detail: r.Value.ARN, Err: r.Err}
	}
	report.Functions(cmd.OutOrStdout(), "publish", outcomes)
	return outcomeErr(outcomes)
}
