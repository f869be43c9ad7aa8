package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	provider "github.com/loom-ai/loom/internal/infrastructure/openai"
	"github.com/loom-ai/loom/internal/middleware"
	"github.com/loom-ai/loom/internal/services/account"
	"github.com/loom-ai/loom/internal/stream"
)

type TimeoutConfig struct {
	PongWait   time.Duration
	PingPeriod time.Duration
	WriteWait  time.Duration
}

var (
	defaultTimeouts = TimeoutConfig{
		PongWait:   30 * time.Second,
		PingPeriod: 27 * time.Second, // (PongWait * 9) / 10
		WriteWait:  10 * time.Second,
	}

	currentTimeouts = defaultTimeouts

	upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true // In production, implement proper origin checking
		},
	}
)

func SetTimeouts(timeouts TimeoutConfig) func() {
	previous := currentTimeouts
	currentTimeouts = timeouts
	return func() {
		currentTimeouts = previous
	}
}

// streamRequest is one client request on the run-stream socket.
type streamRequest struct {
	ThreadID     string `json:"thread_id"`
	AssistantID  string `json:"assistant_id"`
	Instructions string `json:"instructions"`
}

// HandleAssistantStream upgrades the connection and serves run requests.
// The connection is accepted unconditionally; authentication problems are
// reported as in-band error frames so the client can read them, reconnect
// with a fresh token and keep the same protocol.
func (h *Handlers) HandleAssistantStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to upgrade websocket connection")
		return
	}
	h.sessions.Add(conn)
	defer func() {
		h.sessions.Remove(conn)
		conn.Close()
	}()

	userID := middleware.UserID(r.Context())

	// Ping/pong keepalive
	conn.SetReadDeadline(time.Now().Add(currentTimeouts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(currentTimeouts.PongWait))
	})

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(currentTimeouts.PingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(currentTimeouts.WriteWait)
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(currentTimeouts.PongWait))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Msg("Websocket read failed")
			}
			return
		}

		var req streamRequest
		if err := json.Unmarshal(message, &req); err != nil {
			if err := writeJSON(conn, map[string]string{"error": "Invalid JSON"}); err != nil {
				return
			}
			continue
		}
		if req.ThreadID == "" || req.AssistantID == "" {
			if err := writeJSON(conn, map[string]string{"error": "Missing required parameters"}); err != nil {
				return
			}
			continue
		}

		if err := h.streamRun(r.Context(), conn, userID, req); err != nil {
			log.Debug().Err(err).Msg("Run stream aborted")
			return
		}
	}
}

// streamRun executes one run request to its terminal frame. A non-nil error
// means the connection itself failed and the session should end; upstream
// and protocol problems are delivered as frames and return nil.
func (h *Handlers) streamRun(ctx context.Context, conn *websocket.Conn, userID string, req streamRequest) error {
	if userID == "" {
		return writeJSON(conn, map[string]string{"error": "Authentication required"})
	}

	apiKey, err := h.accounts.APIKey(ctx, userID)
	if err != nil {
		if !errors.Is(err, account.ErrAPIKeyNotFound) {
			log.Error().Str("user_id", userID).Err(err).Msg("Credential lookup failed")
		}
		return writeJSON(conn, map[string]string{"error": "API key not found"})
	}

	client, err := provider.NewService(apiKey)
	if err != nil {
		return writeJSON(conn, map[string]string{"error": "API key not found"})
	}

	sink := func(payload []byte) error {
		conn.SetWriteDeadline(time.Now().Add(currentTimeouts.WriteWait))
		return conn.WriteMessage(websocket.TextMessage, payload)
	}
	handler := stream.NewHandler(sink, h.artifacts.Scheduler(client, userID))

	handle := &stream.RunHandle{
		ThreadID:    req.ThreadID,
		AssistantID: req.AssistantID,
	}
	params := provider.RunParams{AdditionalInstructions: req.Instructions}

	streamErr := client.StreamRun(ctx, handle, params, handler.Handle)

	// Exactly one terminal frame per run: if the handler already sent the
	// error frame for a failed run, nothing more goes out.
	if handler.Terminated() {
		return nil
	}
	if streamErr != nil {
		return writeFrame(conn, stream.Frame{Type: stream.FrameError, Message: streamErr.Error()})
	}

	messages, err := client.ListThreadMessages(ctx, req.ThreadID)
	if err != nil {
		return writeFrame(conn, stream.Frame{Type: stream.FrameError, Message: err.Error()})
	}
	return writeFrame(conn, stream.Frame{Type: stream.FrameEnd, Data: messages})
}

func writeJSON(conn *websocket.Conn, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(currentTimeouts.WriteWait))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func writeFrame(conn *websocket.Conn, frame stream.Frame) error {
	return writeJSON(conn, frame)
}
