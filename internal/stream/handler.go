package stream

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

// Sink delivers one serialized frame to the client connection.
type Sink func(payload []byte) error

// ArtifactFunc schedules materialization of a remote file. Implementations
// must return immediately; the download happens off the event path.
type ArtifactFunc func(fileID string, isImage bool)

// Handler translates internal run events into client frames. It is bound to
// one connection and is not safe for concurrent use; the adapter invokes it
// from a single goroutine in upstream order.
type Handler struct {
	sink        Sink
	materialize ArtifactFunc
	dispatch    map[Kind]func(*RunEvent) error

	terminated bool
	current    *openai.Message
}

// NewHandler returns a Handler forwarding frames through sink. materialize
// may be nil when no artifact side channel is wanted (tests, dry runs).
func NewHandler(sink Sink, materialize ArtifactFunc) *Handler {
	h := &Handler{
		sink:        sink,
		materialize: materialize,
	}
	h.dispatch = map[Kind]func(*RunEvent) error{
		KindRunCreated:      h.onRunCreated,
		KindTextDelta:       h.onTextDelta,
		KindMessageCreated:  h.onMessageCreated,
		KindMessageDone:     h.onMessageDone,
		KindImageFileDone:   h.onImageFileDone,
		KindToolCallCreated: h.onToolCallCreated,
		KindToolCallDelta:   h.onToolCallDelta,
		KindRunFailed:       h.onRunFailed,
		KindDone:            h.onDone,
	}
	return h
}

// Handle processes one event. After a terminal frame has been emitted all
// further events are dropped.
func (h *Handler) Handle(ev RunEvent) error {
	if h.terminated {
		return nil
	}
	fn, ok := h.dispatch[ev.Kind]
	if !ok {
		log.Debug().Str("kind", string(ev.Kind)).Msg("Dropping unhandled run event")
		return nil
	}
	return fn(&ev)
}

// Terminated reports whether the handler already delivered a terminal frame
func (h *Handler) Terminated() bool {
	return h.terminated
}

func (h *Handler) onRunCreated(*RunEvent) error {
	return h.send(Frame{Type: FrameStart, Message: "Assistant started generating text."})
}

func (h *Handler) onTextDelta(ev *RunEvent) error {
	return h.send(Frame{Type: FrameChunk, Message: ev.Text})
}

func (h *Handler) onMessageCreated(ev *RunEvent) error {
	h.current = ev.Message
	return h.send(Frame{Type: FrameMessageCreation, Message: ev.Message})
}

func (h *Handler) onMessageDone(ev *RunEvent) error {
	h.current = ev.Message

	// Generated files referenced from the text are persisted off the event
	// path; the frame must not wait for the downloads.
	if h.materialize != nil {
		for _, fileID := range fileAnnotationIDs(ev.Message) {
			h.materialize(fileID, false)
		}
	}

	return h.send(Frame{Type: FrameMessageDone, Message: ev.Message})
}

func (h *Handler) onImageFileDone(ev *RunEvent) error {
	if h.materialize != nil {
		h.materialize(ev.ImageFileID, true)
	}

	snapshot := ev.Message
	if snapshot == nil {
		snapshot = h.current
	}
	return h.send(Frame{
		Type:    FrameImageFileDone,
		Message: snapshot,
		Data:    map[string]string{"file_id": ev.ImageFileID},
	})
}

func (h *Handler) onToolCallCreated(ev *RunEvent) error {
	return h.send(Frame{Type: FrameToolCall, Message: ev.ToolType})
}

// onToolCallDelta forwards code-interpreter fragments. A delta may carry
// both new input and new logs, producing two frames.
func (h *Handler) onToolCallDelta(ev *RunEvent) error {
	if ev.CodeInput != "" {
		if err := h.send(Frame{Type: FrameCodeInput, Message: ev.CodeInput}); err != nil {
			return err
		}
	}
	if len(ev.CodeLogs) > 0 {
		if err := h.send(Frame{Type: FrameCodeOutput, Message: ev.CodeLogs}); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) onRunFailed(ev *RunEvent) error {
	err := h.send(Frame{Type: FrameError, Message: ev.FailureMessage})
	h.terminated = true
	return err
}

func (h *Handler) onDone(*RunEvent) error {
	// The terminal end frame is assembled by the session once the final
	// message list is available; nothing is forwarded here.
	return nil
}

func (h *Handler) send(frame Frame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", frame.Type, err)
	}
	if err := h.sink(payload); err != nil {
		return fmt.Errorf("send %s frame: %w", frame.Type, err)
	}
	return nil
}

// fileAnnotationIDs collects the file ids of file_path annotations in the
// message's text content. Image blocks are handled separately via
// KindImageFileDone.
func fileAnnotationIDs(msg *openai.Message) []string {
	if msg == nil {
		return nil
	}

	var ids []string
	for _, content := range msg.Content {
		if content.Text == nil {
			continue
		}
		for _, raw := range content.Text.Annotations {
			annotation, ok := raw.(map[string]any)
			if !ok || annotation["type"] != "file_path" {
				continue
			}
			filePath, ok := annotation["file_path"].(map[string]any)
			if !ok {
				continue
			}
			if id, ok := filePath["file_id"].(string); ok && id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
