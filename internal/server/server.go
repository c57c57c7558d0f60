package server

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/menta2k/sight-analyzer/internal/results"
	"github.com/menta2k/sight-analyzer/pkg/facematch"
	"github.com/menta2k/sight-analyzer/pkg/pipeline"
	"github.com/menta2k/sight-analyzer/pkg/processing"
	"github.com/menta2k/sight-analyzer/pkg/types"
	"github.com/menta2k/sight-analyzer/pkg/voice"
)

// Analyzer runs one analysis mode over an image; *pipeline.Orchestrator implements it
type Analyzer interface {
	Run(ctx context.Context, mode types.Mode, img image.Image, gallery *facematch.Gallery) (*pipeline.Report, error)
}

// Transcriber turns streamed audio into final transcripts
type Transcriber interface {
	Connect() error
	Send(data []byte) error
	Transcripts() <-chan string
	Close()
}

// TranscriberFactory opens a transcriber for a session's voice settings
type TranscriberFactory func(ctx context.Context, settings voice.Settings) (Transcriber, error)

// Config holds server options
type Config struct {
	Logger         *zap.Logger
	AllowedOrigins []string // empty allows any origin
	Voice          voice.Settings
	NewTranscriber TranscriberFactory // nil disables audio_data
	MaxImageBytes  int
}

// Server accepts websocket analysis sessions
type Server struct {
	analyzer       Analyzer
	store          results.Store
	gallery        *facematch.Gallery
	processor      *processing.Processor
	newTranscriber TranscriberFactory
	voice          voice.Settings
	maxImageBytes  int
	logger         *zap.Logger
	upgrader       websocket.Upgrader
	started        time.Time

	sessions sync.WaitGroup
	active   atomic.Int64
}

// New creates a server. store and gallery may be shared with other components.
func New(analyzer Analyzer, store results.Store, gallery *facematch.Gallery, config Config) *Server {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.MaxImageBytes <= 0 {
		config.MaxImageBytes = 10 << 20
	}
	if config.Voice == (voice.Settings{}) {
		config.Voice = voice.DefaultSettings()
	}

	s := &Server{
		analyzer:       analyzer,
		store:          store,
		gallery:        gallery,
		processor:      processing.NewProcessor(),
		newTranscriber: config.NewTranscriber,
		voice:          config.Voice,
		maxImageBytes:  config.MaxImageBytes,
		logger:         config.Logger,
		started:        time.Now(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(config.AllowedOrigins),
	}
	return s
}

// Handler routes /ws and /healthz
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := httpServer.Shutdown(shutdownCtx)
	s.sessions.Wait()
	return err
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade to websocket", zap.Error(err))
		return
	}

	s.sessions.Add(1)
	s.active.Add(1)
	defer func() {
		s.active.Add(-1)
		s.sessions.Done()
	}()

	session := newSession(uuid.New().String(), conn, s)
	session.logger.Info("session started")
	session.run()
	session.logger.Info("session ended")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "ok",
		"sessions": s.active.Load(),
		"uptime":   time.Since(s.started).Round(time.Second).String(),
		"time":     time.Now().UTC(),
	})
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
