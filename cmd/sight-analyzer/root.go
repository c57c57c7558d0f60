package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	sightanalyzer "github.com/menta2k/sight-analyzer"
	"github.com/menta2k/sight-analyzer/internal/config"
	"github.com/menta2k/sight-analyzer/internal/logging"
	"github.com/menta2k/sight-analyzer/internal/results"
	"github.com/menta2k/sight-analyzer/pkg/facematch"
	"github.com/menta2k/sight-analyzer/pkg/processing"
)

// globalOptions are flags shared by every subcommand. Empty values keep the config file setting.
type globalOptions struct {
	ConfigPath string
	Backend    string
	URL        string
	Model      string
	LogLevel   string
}

var (
	globals globalOptions
	// cfg is loaded in PersistentPreRunE
	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:           "sight-analyzer",
	Short:         "Narrated image descriptions from local vision models",
	Version:       sightanalyzer.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig(globals)
		if err != nil {
			return err
		}

		logger, err = logging.New(cfg.Log.Level, cfg.Log.Development)
		if err != nil {
			return err
		}
		zap.ReplaceGlobals(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute runs the root command with a context cancelled on Ctrl+C or SIGTERM
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globals.ConfigPath, "config", "", "config file (default: ~/.config/sight-analyzer/config.json)")
	rootCmd.PersistentFlags().StringVar(&globals.Backend, "backend", "", "vision backend: ollama or llamacpp")
	rootCmd.PersistentFlags().StringVar(&globals.URL, "url", "", "vision server URL")
	rootCmd.PersistentFlags().StringVarP(&globals.Model, "model", "m", "", "vision model name")
	rootCmd.PersistentFlags().StringVar(&globals.LogLevel, "log-level", "", "log level: debug, info, warn, error")
}

func loadConfig(opts globalOptions) (*config.Config, error) {
	path := opts.ConfigPath
	if path == "" {
		path = config.GetConfigPath()
	}

	c, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if opts.Backend != "" {
		c.Vision.Backend = opts.Backend
		if opts.URL == "" {
			// the configured URL belongs to the other backend
			c.Vision.URL = ""
		}
	}
	if opts.URL != "" {
		c.Vision.URL = opts.URL
	}
	if opts.Model != "" {
		c.Vision.Model = opts.Model
	}
	if opts.LogLevel != "" {
		c.Log.Level = opts.LogLevel
	}
	return c, c.Validate()
}

// analyzerConfig maps the file configuration onto the library's
func analyzerConfig(c *config.Config, log *zap.Logger) sightanalyzer.Config {
	return sightanalyzer.Config{
		Backend:    c.Vision.Backend,
		URL:        c.Vision.URL,
		Model:      c.Vision.Model,
		SceneModel: c.Vision.SceneModel,
		Encode: processing.EncodeOptions{
			Format:  c.Vision.SendFormat,
			MaxDim:  c.Vision.SendSize,
			Quality: c.Vision.SendQuality,
		},
		MinObjectScore: c.Analysis.MinObjectScore,
		MaxObjects:     c.Analysis.MaxObjects,
		MaxFaces:       c.Analysis.MaxFaces,
		Matcher: facematch.Config{
			Scale:     c.Analysis.LandmarkScale,
			Threshold: facematch.Threshold(c.Analysis.MatchThreshold),
		},
		Seed:   c.Analysis.Seed,
		Logger: log,
	}
}

func newAnalyzer() (*sightanalyzer.ImageAnalyzer, error) {
	return sightanalyzer.NewWithConfig(analyzerConfig(cfg, logger))
}

// openStore opens the configured results store
func openStore(ctx context.Context, c *config.Config) (results.Store, error) {
	ttl, err := c.Storage.TTLDuration()
	if err != nil {
		return nil, err
	}

	switch c.Storage.Backend {
	case "redis":
		return results.NewRedisStore(ctx, results.RedisOptions{
			Addr:     c.Storage.RedisAddr,
			Password: c.Storage.RedisPassword,
			DB:       c.Storage.RedisDB,
			TTL:      ttl,
		})
	default:
		return results.NewMemoryStore(ttl), nil
	}
}
