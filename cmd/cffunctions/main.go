package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudfrontkeyvaluestore"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/micahrl/cffunctions/internal/config"
	"github.com/micahrl/cffunctions/internal/distribution"
	"github.com/micahrl/cffunctions/internal/functions"
	"github.com/micahrl/cffunctions/internal/kvs"
)

var version = "dev"

var (
	configPath  string
	region      string
	verbose     bool
	concurrency int

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cffunctions",
	Short: "Deploy CloudFront Functions and attach them to distributions",
	Long: `cffunctions stages and publishes CloudFront Functions described in a
project file, keeps their key value stores in sync, and associates them with
distribution cache behaviors.

Typical flow: stage, publish, associate. destroy undoes all three.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.Sampling = nil
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the project file (.toml, .yaml or .yml)")
	rootCmd.PersistentFlags().StringVar(&region, "region", "", "AWS region override")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 0, "maximum parallel remote operations (0 is unlimited)")

	rootCmd.AddCommand(stageCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(associateCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// loadProject reads and validates the project file. Flags override values
// from the file.
func loadProject() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if region != "" {
		cfg.Region = region
	}
	if err := cfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid project file %s: %w", configPath, err)
	}
	logger.Debug("loaded project file",
		zap.String("path", configPath),
		zap.Strings("functions", cfg.FunctionNames()))
	return cfg, nil
}

// cloudFrontAPI is every CloudFront call the commands make.
type cloudFrontAPI interface {
	functions.CFClient
	functions.KVSARNResolver
	distribution.Client
}

type clients struct {
	cf  cloudFrontAPI
	kvs kvs.Client
}

func newClients(ctx context.Context, cfg *config.Config) (*clients, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &clients{
		cf:  cloudfront.NewFromConfig(awsCfg),
		kvs: cloudfrontkeyvaluestore.NewFromConfig(awsCfg),
	}, nil
}

// setup is the common prologue of every remote command.
func setup(ctx context.Context) (*config.Config, *clients, error) {
	cfg, err := loadProject()
	if err != nil {
		return nil, nil, err
	}
	c, err := newClients(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, c, nil
}
