package voice

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/listen"
	"go.uber.org/zap"
)

// TranscriberConfig configures live speech-to-text
type TranscriberConfig struct {
	APIKey              string
	Model               string // nova-2, nova-3
	Language            string
	Encoding            string // linear16, mulaw, opus
	SampleRate          int
	Channels            int
	ConfidenceThreshold float64
	Logger              *zap.Logger
}

// DefaultTranscriberConfig matches browser microphone capture
func DefaultTranscriberConfig(apiKey string) TranscriberConfig {
	return TranscriberConfig{
		APIKey:              apiKey,
		Model:               "nova-2",
		Language:            "en",
		Encoding:            "linear16",
		SampleRate:          16000,
		Channels:            1,
		ConfidenceThreshold: 0.5,
	}
}

// DeepgramTranscriber streams audio to Deepgram and emits final transcripts
type DeepgramTranscriber struct {
	client    *listen.WSCallback
	callback  *transcriptCallback
	logger    *zap.Logger
	closeOnce sync.Once
}

// NewDeepgramTranscriber creates a transcriber. Call Connect before Send.
func NewDeepgramTranscriber(ctx context.Context, config TranscriberConfig) (*DeepgramTranscriber, error) {
	if config.APIKey == "" {
		return nil, errors.New("deepgram API key is not set")
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	transcriptOptions := &interfaces.LiveTranscriptionOptions{
		Language:       config.Language,
		Encoding:       config.Encoding,
		SampleRate:     config.SampleRate,
		Channels:       config.Channels,
		Endpointing:    "300",
		InterimResults: false,
		FillerWords:    false,
		Model:          config.Model,
	}
	// nova-3 only supports non-English audio through its multilingual mode
	if config.Language != "en" && config.Model == "nova-3" {
		transcriptOptions.Language = "multi"
	}

	clientOptions := &interfaces.ClientOptions{
		EnableKeepAlive: true,
	}

	callback := newTranscriptCallback(config.ConfidenceThreshold, config.Logger)
	dgClient, err := listen.NewWebSocketUsingCallback(ctx, config.APIKey, clientOptions, transcriptOptions, callback)
	if err != nil {
		return nil, fmt.Errorf("failed to create deepgram connection: %w", err)
	}

	return &DeepgramTranscriber{
		client:   dgClient,
		callback: callback,
		logger:   config.Logger,
	}, nil
}

// Connect opens the websocket to Deepgram
func (d *DeepgramTranscriber) Connect() error {
	if !d.client.Connect() {
		return errors.New("failed to connect to deepgram")
	}
	return nil
}

// Send streams one chunk of audio
func (d *DeepgramTranscriber) Send(data []byte) error {
	err := d.client.Stream(bufio.NewReader(bytes.NewReader(data)))
	if err != nil && err != io.EOF {
		return fmt.Errorf("error streaming to deepgram: %w", err)
	}
	return nil
}

// Transcripts delivers final transcripts until Close
func (d *DeepgramTranscriber) Transcripts() <-chan string {
	return d.callback.transcripts
}

// Close stops the stream. Safe to call more than once.
func (d *DeepgramTranscriber) Close() {
	d.closeOnce.Do(func() {
		d.client.Stop()
		d.callback.close()
	})
}

// transcriptCallback receives Deepgram events
type transcriptCallback struct {
	transcripts         chan string
	confidenceThreshold float64
	logger              *zap.Logger

	mu     sync.Mutex
	closed bool
}

func newTranscriptCallback(threshold float64, logger *zap.Logger) *transcriptCallback {
	return &transcriptCallback{
		transcripts:         make(chan string, 16),
		confidenceThreshold: threshold,
		logger:              logger,
	}
}

// handle forwards a final transcript that clears the confidence threshold.
// A full channel drops the transcript rather than blocking the websocket reader.
func (c *transcriptCallback) handle(transcript string, confidence float64, final bool) bool {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" || !final {
		return false
	}
	if confidence < c.confidenceThreshold {
		c.logger.Debug("discarding low confidence transcript",
			zap.String("transcript", transcript),
			zap.Float64("confidence", confidence))
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.transcripts <- transcript:
		return true
	default:
		c.logger.Warn("transcript channel full, dropping transcript", zap.String("transcript", transcript))
		return false
	}
}

func (c *transcriptCallback) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.transcripts)
	}
}

func (c *transcriptCallback) Open(or *msginterfaces.OpenResponse) error {
	c.logger.Info("deepgram socket connection opened")
	return nil
}

func (c *transcriptCallback) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	alternative := mr.Channel.Alternatives[0]
	c.handle(alternative.Transcript, alternative.Confidence, mr.IsFinal)
	return nil
}

func (c *transcriptCallback) Metadata(md *msginterfaces.MetadataResponse) error {
	return nil
}

func (c *transcriptCallback) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	c.logger.Debug("speech started")
	return nil
}

func (c *transcriptCallback) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	c.logger.Debug("utterance ended")
	return nil
}

func (c *transcriptCallback) Close(cr *msginterfaces.CloseResponse) error {
	c.logger.Info("deepgram socket connection closed")
	return nil
}

func (c *transcriptCallback) Error(er *msginterfaces.ErrorResponse) error {
	c.logger.Error("deepgram error", zap.Any("error", er))
	return nil
}

func (c *transcriptCallback) UnhandledEvent(byData []byte) error {
	c.logger.Warn("unhandled deepgram event", zap.ByteString("event", byData))
	return nil
}
