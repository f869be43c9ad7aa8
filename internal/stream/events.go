package stream

import (
	"github.com/sashabaranov/go-openai"
)

// Kind tags one decoded upstream run event. The provider adapter is the only
// code that knows the upstream wire shape; everything downstream dispatches
// on these tags.
type Kind string

const (
	KindRunCreated      Kind = "run_created"
	KindTextDelta       Kind = "text_delta"
	KindMessageCreated  Kind = "message_created"
	KindMessageDone     Kind = "message_done"
	KindImageFileDone   Kind = "image_file_done"
	KindToolCallCreated Kind = "tool_call_created"
	KindToolCallDelta   Kind = "tool_call_delta"
	KindRunFailed       Kind = "run_failed"
	KindDone            Kind = "done"
)

// RunEvent is the internal representation of one upstream event. Only the
// fields relevant to the Kind are populated.
type RunEvent struct {
	Kind Kind

	// Text carries the incremental value for KindTextDelta.
	Text string

	// Message is the current message snapshot for message lifecycle events
	// and KindImageFileDone.
	Message *openai.Message

	// ImageFileID identifies the completed image content block.
	ImageFileID string

	// ToolType names the tool for KindToolCallCreated.
	ToolType string

	// CodeInput and CodeLogs carry code-interpreter delta fragments.
	CodeInput string
	CodeLogs  []string

	// FailureMessage carries the upstream failure for KindRunFailed.
	FailureMessage string
}

// Frame types sent to the client. Exactly one FrameEnd or FrameError
// terminates a session.
const (
	FrameStart           = "start"
	FrameChunk           = "chunk"
	FrameToolCall        = "tool_call"
	FrameCodeInput       = "code_input"
	FrameCodeOutput      = "code_output"
	FrameMessageCreation = "message_creation"
	FrameMessageDone     = "message_done"
	FrameImageFileDone   = "image_file_done"
	FrameEnd             = "end"
	FrameError           = "error"
)

// Frame is one outbound client message.
type Frame struct {
	Type    string `json:"type"`
	Message any    `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}
