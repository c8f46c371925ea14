package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/micahrl/cffunctions/internal/config"
	"github.com/micahrl/cffunctions/internal/functions"
	"github.com/micahrl/cffunctions/internal/kvs"
	"github.com/micahrl/cffunctions/internal/report"
	"github.com/micahrl/cffunctions/internal/settle"
)

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Sync key value stores and create or update functions in DEVELOPMENT",
	Args:  cobra.NoArgs,
	RunE:  runStage,
}

func runStage(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, c, err := setup(ctx)
	if err != nil {
		return err
	}

	arns, err := syncStores(ctx, cfg, c)
	if err != nil {
		return err
	}

	names := cfg.FunctionNames()
	results := settle.All(ctx, concurrency, names, func(ctx context.Context, name string) (functions.Result, error) {
		return stageFunction(ctx, cfg, c, name, arns[cfg.Functions[name].KeyValueStore])
	})

	outcomes := make([]report.FunctionOutcome, len(names))
	for i, r := range results {
		outcomes[i] = report.FunctionOutcome{Name: names[i], Err: r.Err}
		if r.Err == nil {
			outcomes[i].Detail = "updated"
			if r.Value.Created {
				outcomes[i].Detail = "created"
			}
		}
	}
	report.Functions(cmd.OutOrStdout(), "stage", outcomes)
	return outcomeErr(outcomes)
}

func stageFunction(ctx context.Context, cfg *config.Config, c *clients, name, kvsARN string) (functions.Result, error) {
	log := logger.With(zap.String("function", name))

	source, err := os.ReadFile(cfg.HandlerPath(name))
	if err != nil {
		return functions.Result{}, fmt.Errorf("reading handler: %w", err)
	}

	fn := cfg.Functions[name]
	res, err := functions.Stage(ctx, c.cf, functions.Definition{
		Name:    name,
		Comment: fn.Description,
		Runtime: cfg.RuntimeFor(name),
		Code:    functions.BuildFunctionCode(source, kvsARN),
		KVSARN:  kvsARN,
	})
	if err != nil {
		log.Error("failed to stage function", zap.Error(err))
		return res, err
	}
	log.Info("staged function", zap.String("etag", res.ETag), zap.Bool("created", res.Created))
	return res, nil
}

// syncStores resolves every key value store a function refers to and, when
// the store has an entries file, syncs it. It returns the ARN of each store
// by name.
func syncStores(ctx context.Context, cfg *config.Config, c *clients) (map[string]string, error) {
	var stores []string
	seen := map[string]bool{}
	for _, name := range cfg.FunctionNames() {
		if s := cfg.Functions[name].KeyValueStore; s != "" && !seen[s] {
			seen[s] = true
			stores = append(stores, s)
		}
	}

	results := settle.All(ctx, concurrency, stores, func(ctx context.Context, store string) (string, error) {
		log := logger.With(zap.String("store", store))
		arn, err := functions.ResolveKVSARN(ctx, c.cf, store)
		if err != nil {
			return "", err
		}
		log.Debug("resolved key value store", zap.String("arn", arn))

		path := cfg.EntriesPath(store)
		if path == "" {
			return arn, nil
		}
		data, err := kvs.LoadEntries(path, log)
		if err != nil {
			return "", err
		}
		if _, err := kvs.SyncStore(ctx, c.kvs, arn, data, log); err != nil {
			return "", fmt.Errorf("syncing key value store %s: %w", store, err)
		}
		return arn, nil
	})

	arns := make(map[string]string, len(stores))
	var errs error
	for i, r := range results {
		if r.Err != nil {
			errs = multierr.Append(errs, r.Err)
			continue
		}
		arns[stores[i]] = r.Value
	}
	return arns, errs
}

// outcomeErr folds every failed outcome into one error.
func outcomeErr(outcomes []report.FunctionOutcome) error {
	var err error
	for _, o := range outcomes {
		if o.Err != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", o.Name, o.Err))
		}
	}
	return err
}
