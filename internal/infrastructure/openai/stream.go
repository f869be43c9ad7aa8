package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"github.com/loom-ai/loom/internal/stream"
)

// EventFunc receives decoded run events in upstream order. Returning an
// error aborts the stream.
type EventFunc func(stream.RunEvent) error

// The SDK has no Assistants streaming support, so the run is created here
// with stream=true and the server-sent events are decoded directly. This is
// the only code that knows the upstream wire shape; everything else sees the
// internal stream.RunEvent taxonomy.

type streamRunRequest struct {
	AssistantID  string         `json:"assistant_id"`
	Model        string         `json:"model,omitempty"`
	Instructions string         `json:"instructions,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Stream       bool           `json:"stream"`
}

// StreamRun opens a streaming run for handle and emits decoded events until
// the stream reaches a terminal state. handle's RunID and Status track the
// remote lifecycle as events arrive.
func (s *Service) StreamRun(ctx context.Context, handle *stream.RunHandle, params RunParams, emit EventFunc) error {
	if handle.ThreadID == "" {
		return missingArg("thread_id")
	}
	if handle.AssistantID == "" {
		return missingArg("assistant_id")
	}

	payload, err := json.Marshal(streamRunRequest{
		AssistantID:  handle.AssistantID,
		Model:        params.Model,
		Instructions: params.Instructions,
		Metadata:     params.Metadata,
		Stream:       true,
	})
	if err != nil {
		return fmt.Errorf("encode stream request: %w", err)
	}

	url := fmt.Sprintf("%s/threads/%s/runs", s.baseURL, handle.ThreadID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return wrapErr("runs.stream", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return wrapErr("runs.stream", decodeErrorResponse(resp))
	}

	dec := &runDecoder{handle: handle}
	err = readServerEvents(resp.Body, func(event string, data []byte) (bool, error) {
		events, err := dec.decode(event, data)
		if err != nil {
			return false, wrapErr("runs.stream", err)
		}
		for _, ev := range events {
			if err := emit(ev); err != nil {
				return false, err
			}
		}
		return event == "done", nil
	})
	if err == nil && !handle.Terminal() {
		log.Warn().
			Str("thread_id", handle.ThreadID).
			Str("run_id", handle.RunID).
			Str("status", string(handle.Status)).
			Msg("Stream ended before the run reached a terminal status")
	}
	return err
}

// readServerEvents walks an SSE body, invoking fn once per complete event.
// fn returns true to stop reading.
func readServerEvents(body io.Reader, fn func(event string, data []byte) (bool, error)) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var event string
	var data bytes.Buffer

	flush := func() (bool, error) {
		if event == "" && data.Len() == 0 {
			return false, nil
		}
		stop, err := fn(event, data.Bytes())
		event = ""
		data.Reset()
		return stop, err
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if stop, err := flush(); err != nil || stop {
				return err
			}
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read event stream: %w", err)
	}

	// Trailing event without a final blank line
	if _, err := flush(); err != nil {
		return err
	}
	return nil
}

func decodeErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var wrapper struct {
		Error openai.APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Error.Message != "" {
		wrapper.Error.HTTPStatusCode = resp.StatusCode
		return &wrapper.Error
	}
	return fmt.Errorf("stream request failed with status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
}

// Wire shapes for the delta events. Snapshots reuse the SDK types.

type messageDeltaEvent struct {
	ID    string `json:"id"`
	Delta struct {
		Content []struct {
			Index int    `json:"index"`
			Type  string `json:"type"`
			Text  *struct {
				Value string `json:"value"`
			} `json:"text,omitempty"`
			ImageFile *openai.ImageFile `json:"image_file,omitempty"`
		} `json:"content"`
	} `json:"delta"`
}

type runStepDeltaEvent struct {
	ID    string `json:"id"`
	Delta struct {
		StepDetails struct {
			Type      string `json:"type"`
			ToolCalls []struct {
				Index           int    `json:"index"`
				ID              string `json:"id"`
				Type            string `json:"type"`
				CodeInterpreter *struct {
					Input   string `json:"input"`
					Outputs []struct {
						Type string `json:"type"`
						Logs string `json:"logs"`
					} `json:"outputs"`
				} `json:"code_interpreter"`
			} `json:"tool_calls"`
		} `json:"step_details"`
	} `json:"delta"`
}

// runDecoder turns raw upstream events into internal run events, tracking
// the run handle and which tool calls were already announced.
type runDecoder struct {
	handle    *stream.RunHandle
	seenTools map[string]bool
}

func (d *runDecoder) decode(event string, data []byte) ([]stream.RunEvent, error) {
	switch event {
	case "thread.run.created":
		var run openai.Run
		if err := json.Unmarshal(data, &run); err != nil {
			return nil, fmt.Errorf("decode %s: %w", event, err)
		}
		d.handle.RunID = run.ID
		d.handle.Status = stream.StatusQueued
		return []stream.RunEvent{{Kind: stream.KindRunCreated}}, nil

	case "thread.run.queued":
		d.handle.Status = stream.StatusQueued
		return nil, nil

	case "thread.run.in_progress":
		d.handle.Status = stream.StatusInProgress
		return nil, nil

	case "thread.run.completed":
		d.handle.Status = stream.StatusCompleted
		return nil, nil

	case "thread.run.failed", "thread.run.cancelled", "thread.run.expired":
		return d.decodeRunFailure(event, data)

	case "thread.message.created":
		msg, err := decodeMessage(event, data)
		if err != nil {
			return nil, err
		}
		return []stream.RunEvent{{Kind: stream.KindMessageCreated, Message: msg}}, nil

	case "thread.message.delta":
		return decodeMessageDelta(data)

	case "thread.message.completed":
		return decodeMessageCompleted(data)

	case "thread.run.step.delta":
		return d.decodeStepDelta(data)

	case "error":
		var apiErr openai.APIError
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("stream error event: %s", apiErr.Message)
		}
		return nil, fmt.Errorf("stream error event: %s", data)

	case "done":
		return []stream.RunEvent{{Kind: stream.KindDone}}, nil
	}

	// Lifecycle noise (step created, message in_progress, ...) carries no
	// client-facing information.
	return nil, nil
}

func (d *runDecoder) decodeRunFailure(event string, data []byte) ([]stream.RunEvent, error) {
	var run openai.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("decode %s: %w", event, err)
	}

	if event == "thread.run.cancelled" {
		d.handle.Status = stream.StatusCancelled
	} else {
		d.handle.Status = stream.StatusFailed
	}

	message := fmt.Sprintf("run %s", strings.TrimPrefix(event, "thread.run."))
	if run.LastError != nil && run.LastError.Message != "" {
		message = run.LastError.Message
	}
	return []stream.RunEvent{{Kind: stream.KindRunFailed, FailureMessage: message}}, nil
}

func decodeMessage(event string, data []byte) (*openai.Message, error) {
	var msg openai.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", event, err)
	}
	return &msg, nil
}

func decodeMessageDelta(data []byte) ([]stream.RunEvent, error) {
	var delta messageDeltaEvent
	if err := json.Unmarshal(data, &delta); err != nil {
		return nil, fmt.Errorf("decode thread.message.delta: %w", err)
	}

	var events []stream.RunEvent
	for _, content := range delta.Delta.Content {
		if content.Type == "text" && content.Text != nil && content.Text.Value != "" {
			events = append(events, stream.RunEvent{
				Kind: stream.KindTextDelta,
				Text: content.Text.Value,
			})
		}
	}
	return events, nil
}

// decodeMessageCompleted emits an image event per completed image block
// before the message_done event so artifacts are scheduled first.
func decodeMessageCompleted(data []byte) ([]stream.RunEvent, error) {
	msg, err := decodeMessage("thread.message.completed", data)
	if err != nil {
		return nil, err
	}

	var events []stream.RunEvent
	for _, content := range msg.Content {
		if content.Type == "image_file" && content.ImageFile != nil && content.ImageFile.FileID != "" {
			events = append(events, stream.RunEvent{
				Kind:        stream.KindImageFileDone,
				Message:     msg,
				ImageFileID: content.ImageFile.FileID,
			})
		}
	}
	return append(events, stream.RunEvent{Kind: stream.KindMessageDone, Message: msg}), nil
}

// decodeStepDelta is deliberately strict: a malformed tool-call delta fails
// the whole run rather than silently dropping a frame.
func (d *runDecoder) decodeStepDelta(data []byte) ([]stream.RunEvent, error) {
	var delta runStepDeltaEvent
	if err := json.Unmarshal(data, &delta); err != nil {
		log.Error().Err(err).Msg("Failed to decode tool-call delta")
		return nil, fmt.Errorf("decode thread.run.step.delta: %w", err)
	}

	if delta.Delta.StepDetails.Type != "tool_calls" {
		return nil, nil
	}

	if d.seenTools == nil {
		d.seenTools = make(map[string]bool)
	}

	var events []stream.RunEvent
	for _, call := range delta.Delta.StepDetails.ToolCalls {
		if call.ID != "" && !d.seenTools[call.ID] {
			d.seenTools[call.ID] = true
			events = append(events, stream.RunEvent{
				Kind:     stream.KindToolCallCreated,
				ToolType: call.Type,
			})
		}

		if call.Type != "code_interpreter" || call.CodeInterpreter == nil {
			continue
		}

		ev := stream.RunEvent{Kind: stream.KindToolCallDelta}
		ev.CodeInput = call.CodeInterpreter.Input
		for _, output := range call.CodeInterpreter.Outputs {
			if output.Type == "logs" && output.Logs != "" {
				ev.CodeLogs = append(ev.CodeLogs, output.Logs)
			}
		}
		if ev.CodeInput != "" || len(ev.CodeLogs) > 0 {
			events = append(events, ev)
		}
	}
	return events, nil
}
