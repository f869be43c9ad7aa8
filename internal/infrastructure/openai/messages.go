package openai

import (
	"context"

	"github.com/sashabaranov/go-openai"
)

// ListThreadMessages returns the messages of a thread in the provider's
// default order (newest first). Used to assemble the terminal end frame.
func (s *Service) ListThreadMessages(ctx context.Context, threadID string) ([]openai.Message, error) {
	if threadID == "" {
		return nil, missingArg("thread_id")
	}

	list, err := s.client.ListMessage(ctx, threadID, nil, nil, nil, nil, nil)
	if err != nil {
		return nil, wrapErr("messages.list", err)
	}
	return list.Messages, nil
}

// RetrieveMessage fetches a single message
func (s *Service) RetrieveMessage(ctx context.Context, threadID, messageID string) (openai.Message, error) {
	if threadID == "" {
		return openai.Message{}, missingArg("thread_id")
	}
	if messageID == "" {
		return openai.Message{}, missingArg("message_id")
	}

	msg, err := s.client.RetrieveMessage(ctx, threadID, messageID)
	return msg, wrapErr("messages.retrieve", err)
}
