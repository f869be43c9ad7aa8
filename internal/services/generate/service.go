// Package generate produces assistant-building artifacts (system
// instructions, function tool definitions, response schemas) from free-form
// prompts via chat completions.
package generate

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Kind selects what the generation call should produce.
type Kind string

const (
	KindSystemInstruction Kind = "system_instruction"
	KindFunctionTool      Kind = "function_tool"
	KindResponseSchema    Kind = "response_schema"
)

var ErrUnknownKind = errors.New("unknown generation kind")

// Completer is the chat-completion slice of the provider client.
// *openai.Client satisfies it.
type Completer interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

var systemPrompts = map[Kind]string{
	KindSystemInstruction: "You write system instructions for AI assistants. " +
		"Translate the user's high-level requirements into precise instructions addressed " +
		"to the assistant in the second person. State the assistant's identity and role " +
		"first, then what it can and cannot do. Respond with a single plain-text message, " +
		"no formatting, no follow-ups.",
	KindFunctionTool: "You write function tool definitions for AI assistants. " +
		"Translate the user's description into a single JSON object with \"name\", " +
		"\"description\" and a JSON Schema \"parameters\" block, compatible with both the " +
		"Assistants and Chat Completions APIs. Respond with the JSON object only, no " +
		"prose and no code fences.",
	KindResponseSchema: "You write structured-output response schemas for AI assistants. " +
		"Translate the user's description into a single JSON Schema object compatible " +
		"with both the Assistants and Chat Completions APIs: set \"additionalProperties\" " +
		"to false and mark every property required. Respond with the JSON object only, " +
		"no prose and no code fences.",
}

// Service generates assistant-building artifacts with bounded retries.
type Service struct {
	retry *RetryPolicy
}

// NewService creates a generation service. A nil policy gets the default.
func NewService(retry *RetryPolicy) *Service {
	if retry == nil {
		retry = DefaultRetryPolicy()
	}
	return &Service{retry: retry}
}

// Generate runs one generation call for the given kind and prompt.
func (s *Service) Generate(ctx context.Context, client Completer, kind Kind, prompt string) (string, error) {
	system, ok := systemPrompts[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("prompt is required")
	}

	req := openai.ChatCompletionRequest{
		Model: openai.GPT4o,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: html.EscapeString(prompt)},
		},
	}

	var out string
	err := s.retry.Execute(ctx, func() error {
		resp, err := client.CreateChatCompletion(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("empty completion response")
		}
		out = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}
