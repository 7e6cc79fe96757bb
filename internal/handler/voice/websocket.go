package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voidworks/venting-vault/backend/internal/model/chat"
	"github.com/voidworks/venting-vault/backend/internal/service/conversation"
	"github.com/voidworks/venting-vault/backend/internal/service/playback"
	"github.com/voidworks/venting-vault/backend/internal/service/recorder"
)

// Handler upgrades /vault/voice connections and drives one capture
// session plus one playback controller per client.
type Handler struct {
	convSvc  *conversation.Service
	upgrader websocket.Upgrader
}

// New creates the voice websocket handler.
func New(convSvc *conversation.Service) *Handler {
	return &Handler{
		convSvc: convSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes registers the websocket endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/vault/voice", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// ConfigMessage grants or revokes the client's microphone permission
// and names the audio container it will send.
type ConfigMessage struct {
	Permission *bool  `json:"permission,omitempty"`
	Format     string `json:"format,omitempty"`
}

// ChunkMessage carries one buffered audio chunk.
type ChunkMessage struct {
	AudioData []byte `json:"audioData"`
	Format    string `json:"format,omitempty"`
}

// PlayMessage requests auditioning of a stored voice artifact.
type PlayMessage struct {
	ID              string  `json:"id"`
	Ref             string  `json:"ref"`
	DurationSeconds float64 `json:"durationSeconds"`
}

type connectionState struct {
	mic        *wsMicrophone
	session    *recorder.Session
	controller *playback.Controller
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.convSvc == nil {
		http.Error(w, "conversation service unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[voice] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[voice] new connection from %s", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sender := &connSender{conn: conn}
	mic := &wsMicrophone{}
	state := &connectionState{
		mic:        mic,
		session:    recorder.NewSession(mic, h.convSvc),
		controller: playback.NewController(&timedFactory{notify: sender.sendPlayback}),
	}
	defer state.controller.Stop()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	go h.pingLoop(ctx, conn)

	sender.sendInfo(map[string]any{
		"type":  "connected",
		"state": state.session.State(),
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			var msg inboundMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("[voice] read error: %v", err)
				}
				return
			}

			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			h.handleMessage(ctx, sender, state, &msg)
		}
	}
}

func (h *Handler) handleMessage(ctx context.Context, sender *connSender, state *connectionState, msg *inboundMessage) {
	switch msg.Type {
	case "config":
		h.handleConfig(sender, state, msg.Data)
	case "chunk":
		h.handleChunk(sender, state, msg.Data)
	case "start":
		h.transition(sender, state, state.session.Start(ctx))
	case "lock":
		h.transition(sender, state, state.session.Lock())
	case "cancel":
		h.transition(sender, state, state.session.Cancel(ctx))
	case "send":
		h.handleSend(ctx, sender, state)
	case "play":
		h.handlePlay(sender, state, msg.Data)
	case "stop":
		state.controller.Stop()
		sender.sendInfo(map[string]any{"type": "playback-stopped"})
	default:
		sender.sendError("unsupported message type: " + msg.Type)
	}
}

func (h *Handler) handleConfig(sender *connSender, state *connectionState, raw json.RawMessage) {
	var cfg ConfigMessage
	if err := json.Unmarshal(raw, &cfg); err != nil {
		sender.sendError("invalid config payload")
		return
	}

	state.mic.applyConfig(cfg)
	sender.sendInfo(map[string]any{
		"type":       "config",
		"permission": state.mic.permitted(),
	})
}

func (h *Handler) handleChunk(sender *connSender, state *connectionState, raw json.RawMessage) {
	var chunk ChunkMessage
	if err := json.Unmarshal(raw, &chunk); err != nil {
		sender.sendError("invalid chunk payload")
		return
	}
	if len(chunk.AudioData) == 0 {
		return
	}

	total := state.mic.writeChunk(chunk.AudioData, chunk.Format)
	log.Printf("[voice] buffered audio chunk size=%d total=%d", len(chunk.AudioData), total)
}

func (h *Handler) handleSend(ctx context.Context, sender *connSender, state *connectionState) {
	messages, err := state.session.Send(ctx)
	if err != nil {
		h.transition(sender, state, err)
		return
	}

	sender.sendInfo(map[string]any{
		"type":     "messages",
		"state":    state.session.State(),
		"messages": messages,
	})
}

func (h *Handler) handlePlay(sender *connSender, state *connectionState, raw json.RawMessage) {
	var play PlayMessage
	if err := json.Unmarshal(raw, &play); err != nil {
		sender.sendError("invalid play payload")
		return
	}
	if play.ID == "" || play.Ref == "" {
		sender.sendError("play requires id and ref")
		return
	}

	ref := fmt.Sprintf("%s#%g", play.Ref, play.DurationSeconds)
	if err := state.controller.Play(ref, play.ID); err != nil {
		sender.sendError(err.Error())
		return
	}
	sender.sendInfo(map[string]any{
		"type":   "playback",
		"active": state.controller.ActiveID(),
	})
}

// transition reports the session state after a lifecycle call. The
// recorder's validation errors travel to the client, they are not
// connection failures.
func (h *Handler) transition(sender *connSender, state *connectionState, err error) {
	if err != nil {
		sender.sendInfo(map[string]any{
			"type":  "state",
			"state": state.session.State(),
			"error": err.Error(),
		})
		return
	}
	sender.sendInfo(map[string]any{
		"type":  "state",
		"state": state.session.State(),
	})
}

func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(54 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// connSender serializes writes; the ping loop, the playback ticker and
// the read loop all write to the same connection.
type connSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *connSender) sendInfo(data map[string]any) {
	s.write(outgoingMessage{Type: "result", Data: data, Timestamp: time.Now().Unix()})
}

func (s *connSender) sendError(message string) {
	s.write(outgoingMessage{Type: "error", Data: map[string]string{"message": message}, Timestamp: time.Now().Unix()})
}

func (s *connSender) sendPlayback(ref string, status playback.Status) {
	s.write(outgoingMessage{
		Type: "playback-status",
		Data: map[string]any{
			"ref":         ref,
			"playing":     status.Playing,
			"currentTime": status.CurrentTime,
			"duration":    status.Duration,
		},
		Timestamp: time.Now().Unix(),
	})
}

func (s *connSender) write(msg outgoingMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteJSON(msg); err != nil {
		log.Printf("[voice] write failed: %v", err)
	}
}

// wsMicrophone adapts buffered client chunks to the recorder's
// Microphone interface. Permission is whatever the client granted in
// its config message.
type wsMicrophone struct {
	mu        sync.Mutex
	granted   bool
	capturing bool
	format    string
	buffer    bytes.Buffer
}

func (m *wsMicrophone) applyConfig(cfg ConfigMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg.Permission != nil {
		m.granted = *cfg.Permission
	}
	if cfg.Format != "" {
		m.format = cfg.Format
	}
}

func (m *wsMicrophone) permitted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.granted
}

func (m *wsMicrophone) RequestPermission(_ context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.granted, nil
}

func (m *wsMicrophone) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.capturing {
		return errors.New("capture already running")
	}
	m.buffer.Reset()
	m.capturing = true
	return nil
}

// Stop materializes the buffered audio as a temp file and returns the
// artifact. The file is transient; only its path survives on the
// message.
func (m *wsMicrophone) Stop(_ context.Context) (chat.VoiceArtifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.capturing = false
	data := make([]byte, m.buffer.Len())
	copy(data, m.buffer.Bytes())
	m.buffer.Reset()

	format := m.format
	if format == "" {
		format = "m4a"
	}

	fileName := fmt.Sprintf("vault-rec-%s.%s", uuid.NewString(), format)
	path := filepath.Join(os.TempDir(), fileName)
	if len(data) > 0 {
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return chat.VoiceArtifact{}, fmt.Errorf("materialize recording: %w", err)
		}
	}

	return chat.VoiceArtifact{
		Ref:  path,
		MIME: mimeForFormat(format),
		Data: data,
	}, nil
}

func (m *wsMicrophone) writeChunk(data []byte, format string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if format != "" {
		m.format = format
	}
	m.buffer.Write(data)
	return m.buffer.Len()
}

func mimeForFormat(format string) string {
	switch format {
	case "m4a", "mp4":
		return "audio/mp4"
	case "wav":
		return "audio/wav"
	case "webm":
		return "audio/webm"
	default:
		return "application/octet-stream"
	}
}
