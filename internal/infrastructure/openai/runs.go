package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
)

// RunParams carries the optional knobs accepted when starting a run.
type RunParams struct {
	Model                  string
	Instructions           string
	AdditionalInstructions string
	Metadata               map[string]any
}

func (p RunParams) toRequest(assistantID string) openai.RunRequest {
	return openai.RunRequest{
		AssistantID:            assistantID,
		Model:                  p.Model,
		Instructions:           p.Instructions,
		AdditionalInstructions: p.AdditionalInstructions,
		Metadata:               p.Metadata,
	}
}

// CreateRun starts a run of assistantID against threadID
func (s *Service) CreateRun(ctx context.Context, threadID, assistantID string, params RunParams) (openai.Run, error) {
	if threadID == "" {
		return openai.Run{}, missingArg("thread_id")
	}
	if assistantID == "" {
		return openai.Run{}, missingArg("assistant_id")
	}

	run, err := s.client.CreateRun(ctx, threadID, params.toRequest(assistantID))
	return run, wrapErr("runs.create", err)
}

// CreateThreadAndRun creates a fresh thread and runs it in one request
func (s *Service) CreateThreadAndRun(ctx context.Context, assistantID string, params RunParams) (openai.Run, error) {
	if assistantID == "" {
		return openai.Run{}, missingArg("assistant_id")
	}

	run, err := s.client.CreateThreadAndRun(ctx, openai.CreateThreadAndRunRequest{
		RunRequest: params.toRequest(assistantID),
		Thread:     openai.ThreadRequest{},
	})
	return run, wrapErr("runs.create_thread_and_run", err)
}

// ListRuns returns the runs belonging to a thread, newest first
func (s *Service) ListRuns(ctx context.Context, threadID string, limit int) ([]openai.Run, error) {
	if threadID == "" {
		return nil, missingArg("thread_id")
	}

	pagination := openai.Pagination{}
	if limit > 0 {
		pagination.Limit = &limit
	}

	list, err := s.client.ListRuns(ctx, threadID, pagination)
	if err != nil {
		return nil, wrapErr("runs.list", err)
	}
	return list.Runs, nil
}

// RetrieveRun fetches the current state of a run
func (s *Service) RetrieveRun(ctx context.Context, threadID, runID string) (openai.Run, error) {
	if threadID == "" {
		return openai.Run{}, missingArg("thread_id")
	}
	if runID == "" {
		return openai.Run{}, missingArg("run_id")
	}

	run, err := s.client.RetrieveRun(ctx, threadID, runID)
	return run, wrapErr("runs.retrieve", err)
}

// UpdateRun replaces the run's metadata
func (s *Service) UpdateRun(ctx context.Context, threadID, runID string, metadata map[string]any) (openai.Run, error) {
	if threadID == "" {
		return openai.Run{}, missingArg("thread_id")
	}
	if runID == "" {
		return openai.Run{}, missingArg("run_id")
	}

	run, err := s.client.ModifyRun(ctx, threadID, runID, openai.RunModifyRequest{Metadata: metadata})
	return run, wrapErr("runs.update", err)
}

// SubmitToolOutputs resumes a run waiting on tool results
func (s *Service) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []openai.ToolOutput) (openai.Run, error) {
	if threadID == "" {
		return openai.Run{}, missingArg("thread_id")
	}
	if runID == "" {
		return openai.Run{}, missingArg("run_id")
	}
	if len(outputs) == 0 {
		return openai.Run{}, missingArg("tool_outputs")
	}

	run, err := s.client.SubmitToolOutputs(ctx, threadID, runID, openai.SubmitToolOutputsRequest{
		ToolOutputs: outputs,
	})
	return run, wrapErr("runs.submit_tool_outputs", err)
}

// CancelRun cancels an in-progress run
func (s *Service) CancelRun(ctx context.Context, threadID, runID string) (openai.Run, error) {
	if threadID == "" {
		return openai.Run{}, missingArg("thread_id")
	}
	if runID == "" {
		return openai.Run{}, missingArg("run_id")
	}

	run, err := s.client.CancelRun(ctx, threadID, runID)
	return run, wrapErr("runs.cancel", err)
}

// CreateAndPollRun starts a run and blocks until it reaches a terminal
// status, polling at the given interval.
func (s *Service) CreateAndPollRun(ctx context.Context, threadID, assistantID string, params RunParams, interval time.Duration) (openai.Run, error) {
	run, err := s.CreateRun(ctx, threadID, assistantID, params)
	if err != nil {
		return openai.Run{}, err
	}

	for {
		switch run.Status {
		case openai.RunStatusCompleted, openai.RunStatusFailed,
			openai.RunStatusCancelled, openai.RunStatusExpired,
			openai.RunStatusIncomplete, openai.RunStatusRequiresAction:
			return run, nil
		}

		select {
		case <-ctx.Done():
			return run, fmt.Errorf("polling run %s: %w", run.ID, ctx.Err())
		case <-time.After(interval):
		}

		run, err = s.RetrieveRun(ctx, threadID, run.ID)
		if err != nil {
			return openai.Run{}, err
		}
	}
}

// ListRunSteps returns the steps of a run
func (s *Service) ListRunSteps(ctx context.Context, threadID, runID string, limit int) ([]openai.RunStep, error) {
	if threadID == "" {
		return nil, missingArg("thread_id")
	}
	if runID == "" {
		return nil, missingArg("run_id")
	}

	pagination := openai.Pagination{}
	if limit > 0 {
		pagination.Limit = &limit
	}

	list, err := s.client.ListRunSteps(ctx, threadID, runID, pagination)
	if err != nil {
		return nil, wrapErr("run_steps.list", err)
	}
	return list.RunSteps, nil
}

// RetrieveRunStep fetches one run step
func (s *Service) RetrieveRunStep(ctx context.Context, threadID, runID, stepID string) (openai.RunStep, error) {
	if threadID == "" {
		return openai.RunStep{}, missingArg("thread_id")
	}
	if runID == "" {
		return openai.RunStep{}, missingArg("run_id")
	}
	if stepID == "" {
		return openai.RunStep{}, missingArg("step_id")
	}

	step, err := s.client.RetrieveRunStep(ctx, threadID, runID, stepID)
	return step, wrapErr("run_steps.retrieve", err)
}
