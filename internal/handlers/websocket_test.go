package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/loom-ai/loom/internal/middleware"
	"github.com/loom-ai/loom/internal/services/account"
	"github.com/loom-ai/loom/internal/services/artifact"
	"github.com/loom-ai/loom/internal/services/generate"
	"github.com/loom-ai/loom/internal/services/token"
	"github.com/loom-ai/loom/internal/services/vectorstore"
	"github.com/loom-ai/loom/internal/store"
)

// sseScript serves a fixed sequence of (event, data) pairs as one SSE body.
type sseScript [][2]string

type testEnv struct {
	handlers *Handlers
	store    *store.Store
	accounts *account.Service
	server   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	sup := artifact.NewSupervisor(1, 16)
	t.Cleanup(sup.Close)

	accounts := account.NewService(st, nil)
	h := New(accounts, artifact.NewService(st, sup), vectorstore.NewService(st), generate.NewService(nil))

	router := mux.NewRouter()
	router.Handle("/ws/assistant/stream", middleware.PopulateUser(http.HandlerFunc(h.HandleAssistantStream)))
	router.Handle("/artifacts", middleware.RequireQueryToken(http.HandlerFunc(h.HandleListArtifacts))).Methods(http.MethodGet)
	router.Handle("/artifacts/{file_id}/download", middleware.RequireQueryToken(http.HandlerFunc(h.HandleDownloadArtifact))).Methods(http.MethodGet)
	router.Handle("/vector_stores/{id}/status", middleware.RequireQueryToken(http.HandlerFunc(h.HandleVectorStoreStatus))).Methods(http.MethodGet)
	router.HandleFunc("/auth/register", h.HandleRegister).Methods(http.MethodPost)
	router.HandleFunc("/auth/token", h.HandleToken).Methods(http.MethodPost)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{handlers: h, store: st, accounts: accounts, server: server}
}

// newUser registers a user, optionally stores an API key, and returns its
// id and a fresh access token.
func (e *testEnv) newUser(t *testing.T, apiKey string) (string, string) {
	t.Helper()
	user, err := e.accounts.Register(context.Background(), "user-"+t.Name(), "account-key")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if apiKey != "" {
		if err := e.accounts.SetAPIKey(context.Background(), user.ID, apiKey); err != nil {
			t.Fatalf("set api key: %v", err)
		}
	}
	signed, _, err := token.Mint(user.ID)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return user.ID, signed
}

// stubUpstream fakes the provider: run creation answers with the SSE script,
// the final message listing with messages.
func stubUpstream(t *testing.T, script sseScript, messages string) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/threads/t1/runs":
			w.Header().Set("Content-Type", "text/event-stream")
			for _, pair := range script {
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", pair[0], pair[1])
			}
		case r.Method == http.MethodGet && r.URL.Path == "/v1/threads/t1/messages":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, messages)
		default:
			t.Errorf("unexpected upstream request %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	os.Setenv("OPENAI_BASE_URL", server.URL+"/v1")
	t.Cleanup(func() { os.Unsetenv("OPENAI_BASE_URL") })
}

func (e *testEnv) dial(t *testing.T, accessToken string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws/assistant/stream"
	if accessToken != "" {
		wsURL += "?token=" + accessToken
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wireFrame struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func readFrame(t *testing.T, conn *websocket.Conn) wireFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var frame wireFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		t.Fatalf("decode frame %q: %v", payload, err)
	}
	return frame
}

func messageString(t *testing.T, frame wireFrame) string {
	t.Helper()
	var s string
	if err := json.Unmarshal(frame.Message, &s); err != nil {
		t.Fatalf("frame message %q is not a string: %v", frame.Message, err)
	}
	return s
}

func TestAssistantStreamEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	_, accessToken := env.newUser(t, "sk-test")

	stubUpstream(t, sseScript{
		{"thread.run.created", `{"id":"run_1","thread_id":"t1","status":"queued"}`},
		{"thread.message.created", `{"id":"m1","thread_id":"t1","role":"assistant","content":[]}`},
		{"thread.message.delta", `{"id":"m1","delta":{"content":[{"index":0,"type":"text","text":{"value":"Hel"}}]}}`},
		{"thread.message.delta", `{"id":"m1","delta":{"content":[{"index":0,"type":"text","text":{"value":"lo "}}]}}`},
		{"thread.message.delta", `{"id":"m1","delta":{"content":[{"index":0,"type":"text","text":{"value":"world"}}]}}`},
		{"thread.message.completed", `{"id":"m1","thread_id":"t1","role":"assistant","content":[{"type":"text","text":{"value":"Hello world","annotations":[]}}]}`},
		{"thread.run.completed", `{"id":"run_1","status":"completed"}`},
		{"done", `[DONE]`},
	}, `{"object":"list","data":[{"id":"m1","thread_id":"t1","role":"assistant","content":[{"type":"text","text":{"value":"Hello world","annotations":[]}}]}]}`)

	conn := env.dial(t, accessToken)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"thread_id":"t1","assistant_id":"a1"}`)); err != nil {
		t.Fatalf("write request: %v", err)
	}

	start := readFrame(t, conn)
	if start.Type != "start" || messageString(t, start) != "Assistant started generating text." {
		t.Fatalf("start frame = %+v", start)
	}

	creation := readFrame(t, conn)
	if creation.Type != "message_creation" {
		t.Fatalf("frame type = %q, want message_creation", creation.Type)
	}

	for _, want := range []string{"Hel", "lo ", "world"} {
		frame := readFrame(t, conn)
		if frame.Type != "chunk" {
			t.Fatalf("frame type = %q, want chunk", frame.Type)
		}
		if got := messageString(t, frame); got != want {
			t.Errorf("chunk = %q, want %q", got, want)
		}
	}

	done := readFrame(t, conn)
	if done.Type != "message_done" {
		t.Fatalf("frame type = %q, want message_done", done.Type)
	}

	end := readFrame(t, conn)
	if end.Type != "end" {
		t.Fatalf("frame type = %q, want end", end.Type)
	}
	var finalMessages []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(end.Data, &finalMessages); err != nil {
		t.Fatalf("decode end data: %v", err)
	}
	if len(finalMessages) != 1 || finalMessages[0].ID != "m1" {
		t.Errorf("end data = %s", end.Data)
	}
}

func TestAssistantStreamProtocolErrors(t *testing.T) {
	env := newTestEnv(t)
	_, accessToken := env.newUser(t, "sk-test")
	conn := env.dial(t, accessToken)

	// invalid JSON keeps the socket open
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{not json`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if frame := readFrame(t, conn); frame.Error != "Invalid JSON" {
		t.Fatalf("frame = %+v, want Invalid JSON error", frame)
	}

	// missing parameters, same socket
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"thread_id":"t1"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if frame := readFrame(t, conn); frame.Error != "Missing required parameters" {
		t.Fatalf("frame = %+v, want Missing required parameters error", frame)
	}
}

func TestAssistantStreamRequiresAuthentication(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "")

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"thread_id":"t1","assistant_id":"a1"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if frame := readFrame(t, conn); frame.Error != "Authentication required" {
		t.Fatalf("frame = %+v, want Authentication required error", frame)
	}
}

func TestAssistantStreamRequiresAPIKey(t *testing.T) {
	env := newTestEnv(t)
	_, accessToken := env.newUser(t, "")
	conn := env.dial(t, accessToken)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"thread_id":"t1","assistant_id":"a1"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if frame := readFrame(t, conn); frame.Error != "API key not found" {
		t.Fatalf("frame = %+v, want API key not found error", frame)
	}
}

func TestAssistantStreamRunFailure(t *testing.T) {
	env := newTestEnv(t)
	_, accessToken := env.newUser(t, "sk-test")

	stubUpstream(t, sseScript{
		{"thread.run.created", `{"id":"run_1","status":"queued"}`},
		{"thread.run.failed", `{"id":"run_1","status":"failed","last_error":{"code":"rate_limit_exceeded","message":"You exceeded your quota"}}`},
		{"done", `[DONE]`},
	}, `{"object":"list","data":[]}`)

	conn := env.dial(t, accessToken)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"thread_id":"t1","assistant_id":"a1"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	start := readFrame(t, conn)
	if start.Type != "start" {
		t.Fatalf("frame type = %q, want start", start.Type)
	}

	failure := readFrame(t, conn)
	if failure.Type != "error" {
		t.Fatalf("frame type = %q, want error", failure.Type)
	}
	if got := messageString(t, failure); got != "You exceeded your quota" {
		t.Errorf("error message = %q", got)
	}

	// the error frame is the terminal one: the next frame on the socket
	// must answer the next request, not a stray end frame
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{not json`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if frame := readFrame(t, conn); frame.Error != "Invalid JSON" {
		t.Fatalf("frame = %+v, want Invalid JSON after terminal error", frame)
	}
}

func TestAssistantStreamMaterializesImages(t *testing.T) {
	env := newTestEnv(t)
	userID, accessToken := env.newUser(t, "sk-test")

	pngBytes := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 13, 'I', 'H', 'D', 'R'}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/threads/t1/runs":
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "event: thread.run.created\ndata: {\"id\":\"run_1\",\"status\":\"queued\"}\n\n")
			fmt.Fprint(w, `event: thread.message.completed
data: {"id":"m1","role":"assistant","content":[{"type":"image_file","image_file":{"file_id":"file-img"}},{"type":"text","text":{"value":"done","annotations":[]}}]}

`)
			fmt.Fprint(w, "event: thread.run.completed\ndata: {\"id\":\"run_1\",\"status\":\"completed\"}\n\n")
			fmt.Fprint(w, "event: done\ndata: [DONE]\n\n")
		case r.Method == http.MethodGet && r.URL.Path == "/v1/threads/t1/messages":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"object":"list","data":[]}`)
		case r.Method == http.MethodGet && r.URL.Path == "/v1/files/file-img":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"id":"file-img","filename":"plot.png","purpose":"assistants_output"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/v1/files/file-img/content":
			w.Write(pngBytes)
		default:
			t.Errorf("unexpected upstream request %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	os.Setenv("OPENAI_BASE_URL", server.URL+"/v1")
	t.Cleanup(func() { os.Unsetenv("OPENAI_BASE_URL") })

	conn := env.dial(t, accessToken)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"thread_id":"t1","assistant_id":"a1"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	sawImageFrame := false
	for {
		frame := readFrame(t, conn)
		if frame.Type == "image_file_done" {
			sawImageFrame = true
		}
		if frame.Type == "end" || frame.Type == "error" {
			break
		}
	}
	if !sawImageFrame {
		t.Error("expected an image_file_done frame")
	}

	// materialization is detached; wait for the artifact to land
	deadline := time.Now().Add(5 * time.Second)
	for {
		art, err := env.store.GetArtifact(context.Background(), "file-img", userID)
		if err == nil {
			if art.Purpose != store.PurposeImage {
				t.Errorf("purpose = %q, want %q", art.Purpose, store.PurposeImage)
			}
			if art.Filename != "plot.png" {
				t.Errorf("filename = %q, want plot.png", art.Filename)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("artifact was never materialized")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
