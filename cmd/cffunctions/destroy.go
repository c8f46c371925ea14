package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/micahrl/cffunctions/internal/association"
	"github.com/micahrl/cffunctions/internal/config"
	"github.com/micahrl/cffunctions/internal/functions"
	"github.com/micahrl/cffunctions/internal/report"
	"github.com/micahrl/cffunctions/internal/settle"
)

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Detach configured functions from their distributions and delete them",
	Long: `destroy removes the configured function associations from every
distribution that still exists, waits for those distributions to deploy, and
then deletes the functions. Missing distributions, behaviors and functions
are skipped with a warning.

If the associations cannot be resolved at all, for example because a
function is not deployed, nothing is changed or deleted.`,
	Args: cobra.NoArgs,
	RunE: runDestroy,
}

func runDestroy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, c, err := setup(ctx)
	if err != nil {
		return err
	}
	return destroy(ctx, cmd.OutOrStdout(), cfg, c)
}

// destroy disassociates, then deletes every configured function. Failures on
// individual distributions do not stop the deletes; a disassociation pass
// that could not start does.
func destroy(ctx context.Context, w io.Writer, cfg *config.Config, c *clients) error {
	r, err := reconcile(ctx, cfg, c, association.Options{Action: association.Disassociate, Strict: false})
	if err != nil {
		return fmt.Errorf("disassociating functions, nothing deleted: %w", err)
	}
	detachErr := printReconcile(w, r)
	if detachErr != nil {
		logger.Warn("disassociation incomplete, deleting functions anyway", zap.Error(detachErr))
	}

	names := cfg.FunctionNames()
	results := settle.All(ctx, concurrency, names, func(ctx context.Context, name string) (string, error) {
		log := logger.With(zap.String("function", name))
		err := functions.Delete(ctx, c.cf, name)
		switch {
		case errors.Is(err, functions.ErrNotFound):
			log.Warn("function does not exist")
			return "not found", nil
		case err != nil:
			log.Error("failed to delete function", zap.Error(err))
			return "", err
		}
		log.Info("deleted function")
		return "deleted", nil
	})

	outcomes := make([]report.FunctionOutcome, len(names))
	for i, r := range results {
		outcomes[i] = report.FunctionOutcome{Name: names[i], Detail: r.Value, Err: r.Err}
	}
	report.Functions(w, "delete", outcomes)
	return multierr.Append(detachErr, outcomeErr(outcomes))
}
