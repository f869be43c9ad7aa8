package openai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

// newGuardService returns a Service whose base URL rejects every request, so
// tests prove argument guards fire before any network activity.
func newGuardService(t *testing.T) *Service {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected network call to %s", r.URL.Path)
		http.Error(w, "unexpected", http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	os.Setenv("OPENAI_BASE_URL", server.URL+"/v1")
	t.Cleanup(func() { os.Unsetenv("OPENAI_BASE_URL") })

	svc, err := NewService("sk-test")
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestNewServiceRequiresKey(t *testing.T) {
	if _, err := NewService(""); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestRunOperationsMissingArguments(t *testing.T) {
	svc := newGuardService(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		call    func() error
		missing string
	}{
		{
			name:    "Create without thread",
			call:    func() error { _, err := svc.CreateRun(ctx, "", "asst_1", RunParams{}); return err },
			missing: "thread_id",
		},
		{
			name:    "Create without assistant",
			call:    func() error { _, err := svc.CreateRun(ctx, "t1", "", RunParams{}); return err },
			missing: "assistant_id",
		},
		{
			name:    "Retrieve without run",
			call:    func() error { _, err := svc.RetrieveRun(ctx, "t1", ""); return err },
			missing: "run_id",
		},
		{
			name:    "Retrieve without thread",
			call:    func() error { _, err := svc.RetrieveRun(ctx, "", "run_1"); return err },
			missing: "thread_id",
		},
		{
			name:    "Update without run",
			call:    func() error { _, err := svc.UpdateRun(ctx, "t1", "", nil); return err },
			missing: "run_id",
		},
		{
			name:    "Cancel without thread",
			call:    func() error { _, err := svc.CancelRun(ctx, "", "run_1"); return err },
			missing: "thread_id",
		},
		{
			name:    "Submit without outputs",
			call:    func() error { _, err := svc.SubmitToolOutputs(ctx, "t1", "run_1", nil); return err },
			missing: "tool_outputs",
		},
		{
			name:    "List without thread",
			call:    func() error { _, err := svc.ListRuns(ctx, "", 0); return err },
			missing: "thread_id",
		},
		{
			name:    "List steps without run",
			call:    func() error { _, err := svc.ListRunSteps(ctx, "t1", "", 0); return err },
			missing: "run_id",
		},
		{
			name:    "Retrieve step without step",
			call:    func() error { _, err := svc.RetrieveRunStep(ctx, "t1", "run_1", ""); return err },
			missing: "step_id",
		},
		{
			name:    "Messages without thread",
			call:    func() error { _, err := svc.ListThreadMessages(ctx, ""); return err },
			missing: "thread_id",
		},
		{
			name:    "File info without id",
			call:    func() error { _, err := svc.GetFileInfo(ctx, ""); return err },
			missing: "file_id",
		},
		{
			name:    "Batch without files",
			call:    func() error { _, err := svc.CreateVectorStoreFileBatch(ctx, "vs_1", nil); return err },
			missing: "file_ids",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if !errors.Is(err, ErrMissingArgument) {
				t.Fatalf("expected ErrMissingArgument, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.missing) {
				t.Errorf("error %q should name the missing field %q", err, tt.missing)
			}
		})
	}
}

func TestErrCategory(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"Deadline", context.DeadlineExceeded, "timeout"},
		{"Plain error", errors.New("connection refused"), "connection"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errCategory(tt.err); got != tt.want {
				t.Errorf("errCategory() = %q, want %q", got, tt.want)
			}
		})
	}
}
