package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/menta2k/sight-analyzer/internal/config"
	"github.com/menta2k/sight-analyzer/internal/server"
	"github.com/menta2k/sight-analyzer/pkg/voice"
)

var serveOpts struct {
	Addr    string
	Gallery string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the websocket server for camera and voice clients",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveOpts.Addr, "addr", "a", "", "listen address (default from config, :8080)")
	serveCmd.Flags().StringVarP(&serveOpts.Gallery, "gallery", "g", "", "directory of known faces to preload")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	sa, err := newAnalyzer()
	if err != nil {
		return err
	}
	if serveOpts.Gallery != "" {
		n, err := loadGallery(sa, serveOpts.Gallery)
		if err != nil {
			return err
		}
		logger.Info("gallery loaded", zap.Int("faces", n))
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("results store ready", zap.String("backend", cfg.Storage.Backend))

	srv := server.New(sa.Orchestrator(), store, sa.Gallery(), server.Config{
		Logger:         logger,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Voice: voice.Settings{
			Enabled:  cfg.Voice.Enabled,
			Language: cfg.Voice.Language,
			Speed:    cfg.Voice.Speed,
		},
		NewTranscriber: transcriberFactory(cfg.Voice),
		MaxImageBytes:  cfg.Server.MaxImageMB << 20,
	})

	addr := serveOpts.Addr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// transcriberFactory returns nil, disabling streamed audio, when no Deepgram key is configured
func transcriberFactory(vc config.VoiceConfig) server.TranscriberFactory {
	if vc.DeepgramAPIKey == "" {
		logger.Info("DEEPGRAM_API_KEY not set, speech recognition disabled")
		return nil
	}
	return func(ctx context.Context, settings voice.Settings) (server.Transcriber, error) {
		tc := voice.DefaultTranscriberConfig(vc.DeepgramAPIKey)
		if vc.DeepgramModel != "" {
			tc.Model = vc.DeepgramModel
		}
		tc.Language = settings.Language
		tc.Logger = logger
		return voice.NewDeepgramTranscriber(ctx, tc)
	}
}
