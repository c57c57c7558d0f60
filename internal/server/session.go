package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/menta2k/sight-analyzer/internal/results"
	"github.com/menta2k/sight-analyzer/pkg/pipeline"
	"github.com/menta2k/sight-analyzer/pkg/types"
	"github.com/menta2k/sight-analyzer/pkg/voice"
)

// Inbound message types
const (
	TypeImage      = "image"
	TypeTranscript = "transcript"
	TypeAudioData  = "audio_data"
	TypeConfig     = "config"
	TypeSave       = "save"
	TypeEnroll     = "enroll"
	TypePing       = "ping"
	TypeStop       = "stop"
)

// Outbound message types
const (
	TypeResult        = "result"
	TypeSpeak         = "speak"
	TypeSaved         = "saved"
	TypeEnrolled      = "enrolled"
	TypeCommand       = "command"
	TypeConfigUpdated = "config_updated"
	TypePong          = "pong"
	TypeError         = "error"
)

// Message is a client request. Data is decoded per Type.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// WebSocketMessage is sent to the client
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ImageRequest asks for an analysis. Image is base64 or a data: URL; an empty Mode means description.
type ImageRequest struct {
	Image  string `json:"image"`
	Mode   string `json:"mode"`
	Source string `json:"source,omitempty"`
}

// TranscriptRequest carries recognised speech
type TranscriptRequest struct {
	Text string `json:"text"`
}

// AudioRequest carries one base64 chunk of microphone audio
type AudioRequest struct {
	Audio string `json:"audio"`
}

// ConfigRequest updates voice settings; nil fields are left unchanged
type ConfigRequest struct {
	Enabled  *bool    `json:"enabled,omitempty"`
	Language *string  `json:"language,omitempty"`
	Speed    *float64 `json:"speed,omitempty"`
}

// EnrollRequest adds a face from the last result to the gallery
type EnrollRequest struct {
	Name      string `json:"name"`
	FaceIndex int    `json:"faceIndex"`
}

// ErrorPayload is the data of an error message
type ErrorPayload struct {
	Message string `json:"message"`
}

type session struct {
	id     string
	conn   *websocket.Conn
	server *Server
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu             sync.Mutex
	settings       voice.Settings
	lastImage      image.Image
	lastSource     string
	lastReport     *pipeline.Report
	cancelAnalysis context.CancelFunc
	transcriber    Transcriber
	work           sync.WaitGroup
}

func newSession(id string, conn *websocket.Conn, s *Server) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		id:       id,
		conn:     conn,
		server:   s,
		logger:   s.logger.With(zap.String("session_id", id)),
		ctx:      ctx,
		cancel:   cancel,
		settings: s.voice,
	}
}

// run reads messages until the client disconnects or sends stop
func (ss *session) run() {
	defer ss.close()

	ss.conn.SetReadLimit(int64(ss.server.maxImageBytes)*4/3 + 4096)
	for {
		var msg Message
		if err := ss.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ss.logger.Error("websocket error", zap.Error(err))
			}
			return
		}

		if stop := ss.handle(msg); stop {
			return
		}
	}
}

// handle dispatches one message and reports whether the session should end
func (ss *session) handle(msg Message) bool {
	switch msg.Type {
	case TypeImage:
		var req ImageRequest
		if ss.decode(msg, &req) {
			ss.handleImage(req)
		}
	case TypeTranscript:
		var req TranscriptRequest
		if ss.decode(msg, &req) {
			ss.handleTranscript(req.Text)
		}
	case TypeAudioData:
		var req AudioRequest
		if ss.decode(msg, &req) {
			ss.handleAudio(req)
		}
	case TypeConfig:
		var req ConfigRequest
		if ss.decode(msg, &req) {
			ss.handleConfig(req)
		}
	case TypeSave:
		ss.handleSave()
	case TypeEnroll:
		var req EnrollRequest
		if ss.decode(msg, &req) {
			ss.handleEnroll(req)
		}
	case TypePing:
		ss.send(TypePong, nil)
	case TypeStop:
		ss.logger.Info("received stop command from client")
		ss.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session stopped"),
			time.Now().Add(time.Second))
		return true
	default:
		ss.logger.Warn("unknown message type", zap.String("type", msg.Type))
		ss.sendError(fmt.Sprintf("unknown message type %q", msg.Type))
	}
	return false
}

func (ss *session) decode(msg Message, v interface{}) bool {
	if len(msg.Data) == 0 {
		return true
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		ss.sendError(fmt.Sprintf("invalid %s payload: %v", msg.Type, err))
		return false
	}
	return true
}

func (ss *session) handleImage(req ImageRequest) {
	mode := types.ModeDescription
	if req.Mode != "" {
		m, err := types.ParseMode(req.Mode)
		if err != nil {
			ss.sendError(err.Error())
			return
		}
		mode = m
	}

	if base64.StdEncoding.DecodedLen(len(req.Image)) > ss.server.maxImageBytes {
		ss.sendError("image is too large")
		return
	}
	img, err := ss.server.processor.LoadImageBase64(req.Image)
	if err == nil {
		err = ss.server.processor.ValidateImage(img)
	}
	if err != nil {
		ss.sendError(err.Error())
		return
	}

	ss.mu.Lock()
	ss.lastImage = img
	ss.lastSource = req.Source
	ss.mu.Unlock()

	ss.analyze(mode, img, req.Source)
}

// analyze runs in the background; a newer request cancels and discards the previous one
func (ss *session) analyze(mode types.Mode, img image.Image, source string) {
	ctx, cancel := context.WithCancel(ss.ctx)

	ss.mu.Lock()
	if ss.cancelAnalysis != nil {
		ss.cancelAnalysis()
	}
	ss.cancelAnalysis = cancel
	ss.mu.Unlock()

	ss.work.Add(1)
	go func() {
		defer ss.work.Done()
		defer cancel()

		report, err := ss.server.analyzer.Run(ctx, mode, img, ss.server.gallery)
		if ctx.Err() != nil {
			ss.logger.Debug("analysis discarded", zap.String("mode", string(mode)))
			return
		}
		if err != nil {
			ss.logger.Error("analysis failed", zap.String("mode", string(mode)), zap.Error(err))
			ss.sendError(fmt.Sprintf("%s analysis failed: %v", mode, err))
			return
		}

		ss.mu.Lock()
		if ctx.Err() != nil {
			ss.mu.Unlock()
			ss.logger.Debug("analysis discarded", zap.String("mode", string(mode)))
			return
		}
		ss.lastReport = report
		ss.lastSource = source
		ss.mu.Unlock()

		ss.logger.Info("analysis complete",
			zap.String("mode", string(mode)),
			zap.Duration("duration", report.Duration))
		ss.send(TypeResult, report)
		ss.speak(report.Description)
	}()
}

func (ss *session) handleTranscript(text string) {
	cmd := voice.ParseCommand(text)
	ss.send(TypeCommand, cmd)

	if mode, ok := cmd.Analysis(); ok {
		ss.mu.Lock()
		img, source := ss.lastImage, ss.lastSource
		ss.mu.Unlock()
		if img == nil {
			ss.sendError("no image loaded")
			return
		}
		ss.analyze(mode, img, source)
		return
	}

	switch cmd.Action {
	case voice.ActionRepeat:
		ss.mu.Lock()
		report := ss.lastReport
		ss.mu.Unlock()
		if report == nil {
			ss.sendError("nothing to repeat")
			return
		}
		ss.speak(report.Description)
	case voice.ActionStop:
		ss.mu.Lock()
		if ss.cancelAnalysis != nil {
			ss.cancelAnalysis()
		}
		ss.mu.Unlock()
	case voice.ActionSave:
		ss.handleSave()
	case voice.ActionHelp:
		ss.speak(voice.HelpText)
	default:
		ss.sendError(fmt.Sprintf("unrecognized command %q", text))
	}
}

func (ss *session) handleAudio(req AudioRequest) {
	if ss.server.newTranscriber == nil {
		ss.sendError("speech recognition is not configured")
		return
	}

	audio, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		ss.sendError("audio must be base64 encoded")
		return
	}

	t, err := ss.ensureTranscriber()
	if err != nil {
		ss.logger.Error("failed to start transcriber", zap.Error(err))
		ss.sendError("speech recognition is unavailable")
		return
	}
	if err := t.Send(audio); err != nil {
		ss.logger.Error("failed to process audio data", zap.Error(err))
	}
}

func (ss *session) ensureTranscriber() (Transcriber, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.transcriber != nil {
		return ss.transcriber, nil
	}

	t, err := ss.server.newTranscriber(ss.ctx, ss.settings)
	if err != nil {
		return nil, err
	}
	if err := t.Connect(); err != nil {
		t.Close()
		return nil, err
	}
	ss.transcriber = t

	ss.work.Add(1)
	go func() {
		defer ss.work.Done()
		for transcript := range t.Transcripts() {
			ss.handleTranscript(transcript)
		}
	}()
	return t, nil
}

func (ss *session) handleConfig(req ConfigRequest) {
	ss.mu.Lock()
	if req.Enabled != nil {
		ss.settings.Enabled = *req.Enabled
	}
	if req.Language != nil {
		if !voice.ValidLanguage(*req.Language) {
			ss.mu.Unlock()
			ss.sendError(fmt.Sprintf("unsupported language %q", *req.Language))
			return
		}
		ss.settings.Language = *req.Language
	}
	if req.Speed != nil {
		ss.settings.Speed = voice.ClampSpeed(*req.Speed)
	}
	settings := ss.settings
	ss.mu.Unlock()

	ss.logger.Info("updated voice settings",
		zap.Bool("enabled", settings.Enabled),
		zap.String("language", settings.Language),
		zap.Float64("speed", settings.Speed))
	ss.send(TypeConfigUpdated, settings)
}

func (ss *session) handleSave() {
	if ss.server.store == nil {
		ss.sendError("saving is not configured")
		return
	}

	ss.mu.Lock()
	report, source := ss.lastReport, ss.lastSource
	ss.mu.Unlock()
	if report == nil {
		ss.sendError("nothing to save")
		return
	}

	ctx, cancel := context.WithTimeout(ss.ctx, 5*time.Second)
	defer cancel()
	result := results.FromReport(report, source)
	id, err := ss.server.store.Save(ctx, result)
	if err != nil {
		ss.logger.Error("failed to save result", zap.Error(err))
		ss.sendError("failed to save result")
		return
	}
	ss.send(TypeSaved, result)
	ss.logger.Info("result saved", zap.String("result_id", id))
}

func (ss *session) handleEnroll(req EnrollRequest) {
	if ss.server.gallery == nil {
		ss.sendError("face gallery is not configured")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		ss.sendError("a name is required to enroll a face")
		return
	}

	ss.mu.Lock()
	report := ss.lastReport
	ss.mu.Unlock()
	if report == nil || req.FaceIndex < 0 || req.FaceIndex >= len(report.Faces) {
		ss.sendError("no such face in the last result")
		return
	}
	face := report.Faces[req.FaceIndex]
	if len(face.Landmarks) == 0 {
		ss.sendError("face has no landmarks")
		return
	}

	id, err := ss.server.gallery.AddLandmarks(req.Name, face.Landmarks)
	if err != nil {
		ss.sendError(err.Error())
		return
	}
	ss.send(TypeEnrolled, map[string]interface{}{"id": id, "name": req.Name})
}

func (ss *session) speak(text string) {
	ss.mu.Lock()
	settings := ss.settings
	ss.mu.Unlock()
	if n, ok := voice.NewNarration(text, settings); ok {
		ss.send(TypeSpeak, n)
	}
}

func (ss *session) sendError(message string) {
	ss.send(TypeError, ErrorPayload{Message: message})
}

func (ss *session) send(msgType string, data interface{}) {
	msg := WebSocketMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now(),
	}

	ss.writeMu.Lock()
	defer ss.writeMu.Unlock()
	ss.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := ss.conn.WriteJSON(msg); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		ss.logger.Error("failed to send websocket message", zap.Error(err), zap.String("type", msgType))
	}
}

func (ss *session) close() {
	ss.cancel()

	ss.mu.Lock()
	t := ss.transcriber
	ss.mu.Unlock()
	if t != nil {
		t.Close()
	}

	ss.work.Wait()
	ss.conn.Close()
}
