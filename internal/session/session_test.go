package session

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/uplink/internal/config"
)

const (
	sessionA = "11111111-1111-1111-1111-111111111111"
	sessionB = "22222222-2222-2222-2222-222222222222"
)

// uploadServer records the upload requests it receives and answers with
// a fixed status and body.
type uploadServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []UploadRequest
	status   int
	body     string
}

func newUploadServer(t *testing.T, status int, body string) *uploadServer {
	t.Helper()

	s := &uploadServer{status: status, body: body}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/sessions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("code"); got != "test-key" {
			t.Errorf("api key = %q, want test-key", got)
		}

		var req UploadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding upload body: %v", err)
		}

		s.mu.Lock()
		s.requests = append(s.requests, req)
		s.mu.Unlock()

		w.WriteHeader(s.status)
		_, _ = w.Write([]byte(s.body))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *uploadServer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *uploadServer) sessionIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.requests))
	for _, r := range s.requests {
		ids = append(ids, r.SessionID)
	}
	return ids
}

// newTestJob builds an UploadJob for one agent rooted at dir.
func newTestJob(t *testing.T, dir string, agentIDs ...string) *UploadJob {
	t.Helper()

	agents := make(map[string]config.Agent)
	for _, id := range agentIDs {
		agents[id] = config.Agent{SessionsDir: dir}
	}

	optsYAML := "agents: [" + strings.Join(agentIDs, ", ") + "]"
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(optsYAML), &node); err != nil {
		t.Fatalf("building options node: %v", err)
	}

	j, err := NewUploadJob(config.JobSpec{
		ID:              "upload",
		Type:            "session_upload",
		IntervalMinutes: 15,
		Config:          node,
	}, agents, slog.Default())
	if err != nil {
		t.Fatalf("NewUploadJob: %v", err)
	}
	return j
}

func writeSession(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, bytes.Repeat([]byte("x"), size), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func writeIndex(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, indexFile), []byte(content), 0o644); err != nil {
		t.Fatalf("writing index: %v", err)
	}
}

func assertArchived(t *testing.T, dir, name string) {
	t.Helper()
	if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
		t.Errorf("%s still present in sessions dir", name)
	}
	if _, err := os.Stat(filepath.Join(dir, archiveDir, name)); err != nil {
		t.Errorf("%s not found in archive: %v", name, err)
	}
}

func assertNotArchived(t *testing.T, dir, name string) {
	t.Helper()
	if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
		t.Errorf("%s missing from sessions dir: %v", name, err)
	}
	if _, err := os.Stat(filepath.Join(dir, archiveDir, name)); !os.IsNotExist(err) {
		t.Errorf("%s unexpectedly archived", name)
	}
}

func TestRun_UploadsAndArchives(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeIndex(t, dir, `{}`)
	name := sessionB + ".jsonl"
	writeSession(t, dir, name, 5*1024)

	srv := newUploadServer(t, http.StatusOK, `{"ok":true}`)
	j := newTestJob(t, dir, "a1")

	res := j.Run(context.Background(), srv.URL, "test-key")

	if !res.Success || res.ItemsProcessed != 1 || len(res.Errors) != 0 {
		t.Fatalf("result = %+v", res)
	}
	if got := srv.sessionIDs(); len(got) != 1 || got[0] != sessionB {
		t.Fatalf("uploaded sessions = %v", got)
	}
	if srv.requests[0].AgentID != "a1" {
		t.Fatalf("agentId = %q, want a1", srv.requests[0].AgentID)
	}
	if want := strings.Repeat("x", 5*1024); srv.requests[0].Transcript != want {
		t.Fatal("transcript body does not match file content")
	}
	assertArchived(t, dir, name)
}

func TestRun_ServerErrorLeavesFileInPlace(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeIndex(t, dir, `{}`)
	name := sessionB + ".jsonl"
	writeSession(t, dir, name, 5*1024)

	srv := newUploadServer(t, http.StatusInternalServerError, "server error")
	j := newTestJob(t, dir, "a1")

	res := j.Run(context.Background(), srv.URL, "test-key")

	if res.Success || res.ItemsProcessed != 0 {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "server error") {
		t.Fatalf("errors = %v, want one containing the response body", res.Errors)
	}
	assertNotArchived(t, dir, name)
}

func TestRun_ConflictArchivesLikeSuccess(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	name := sessionB + ".jsonl"
	writeSession(t, dir, name, 128)

	srv := newUploadServer(t, http.StatusConflict, "already exists")
	j := newTestJob(t, dir, "a1")

	res := j.Run(context.Background(), srv.URL, "test-key")
	if !res.Success || res.ItemsProcessed != 1 {
		t.Fatalf("result = %+v", res)
	}
	assertArchived(t, dir, name)

	// A second run finds the file already archived and re-uploads nothing.
	res = j.Run(context.Background(), srv.URL, "test-key")
	if !res.Success || res.ItemsProcessed != 0 {
		t.Fatalf("second run result = %+v", res)
	}
	if srv.count() != 1 {
		t.Fatalf("server saw %d uploads, want 1", srv.count())
	}
}

func TestRun_SizeBoundary(t *testing.T) {
	t.Parallel()

	t.Run("at limit uploads", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		name := sessionB + ".jsonl"
		writeSession(t, dir, name, MaxTranscriptBytes)

		srv := newUploadServer(t, http.StatusOK, "")
		j := newTestJob(t, dir, "a1")

		res := j.Run(context.Background(), srv.URL, "test-key")
		if !res.Success || res.ItemsProcessed != 1 {
			t.Fatalf("result = %+v", res)
		}
		assertArchived(t, dir, name)
	})

	t.Run("one byte over is refused locally", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		name := sessionB + ".jsonl"
		writeSession(t, dir, name, MaxTranscriptBytes+1)

		srv := newUploadServer(t, http.StatusOK, "")
		j := newTestJob(t, dir, "a1")

		res := j.Run(context.Background(), srv.URL, "test-key")
		if res.Success || res.ItemsProcessed != 0 {
			t.Fatalf("result = %+v", res)
		}
		if srv.count() != 0 {
			t.Fatal("oversized transcript must not be sent over the network")
		}
		assertNotArchived(t, dir, name)
	})
}

func TestRun_InvalidFilenamesReported(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	// Too short to carry a session id.
	writeSession(t, dir, "short.jsonl", 10)
	// 36-char prefix with the wrong hyphen count.
	badHyphens := strings.Repeat("a", 33) + "---x.jsonl"
	writeSession(t, dir, badHyphens, 10)

	srv := newUploadServer(t, http.StatusOK, "")
	j := newTestJob(t, dir, "a1")

	res := j.Run(context.Background(), srv.URL, "test-key")

	if res.Success {
		t.Fatalf("result = %+v, want failure (nothing uploaded, errors present)", res)
	}
	if len(res.Errors) != 2 {
		t.Fatalf("errors = %v, want 2 invalid-filename errors", res.Errors)
	}
	for _, e := range res.Errors {
		if !strings.Contains(e, "invalid session filename") {
			t.Errorf("error %q missing invalid-filename marker", e)
		}
	}
	if srv.count() != 0 {
		t.Fatal("invalid files must not be uploaded")
	}
	assertNotArchived(t, dir, "short.jsonl")
}

func TestRun_ActiveSessionsExcluded(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeIndex(t, dir, `{"`+sessionA+`": {"startedAt": "2026-08-24T10:00:00Z"}}`)
	writeSession(t, dir, sessionA+".jsonl", 64)
	writeSession(t, dir, sessionB+".jsonl", 64)

	srv := newUploadServer(t, http.StatusOK, "")
	j := newTestJob(t, dir, "a1")

	res := j.Run(context.Background(), srv.URL, "test-key")
	if !res.Success || res.ItemsProcessed != 1 {
		t.Fatalf("result = %+v", res)
	}
	if got := srv.sessionIDs(); len(got) != 1 || got[0] != sessionB {
		t.Fatalf("uploaded sessions = %v, want only %s", got, sessionB)
	}
	assertNotArchived(t, dir, sessionA+".jsonl")
	assertArchived(t, dir, sessionB+".jsonl")
}

func TestRun_MalformedIndexTreatedAsEmpty(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeIndex(t, dir, `{not json`)
	writeSession(t, dir, sessionB+".jsonl", 64)

	srv := newUploadServer(t, http.StatusOK, "")
	j := newTestJob(t, dir, "a1")

	res := j.Run(context.Background(), srv.URL, "test-key")
	if !res.Success || res.ItemsProcessed != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestRun_ArchiveNotRescanned(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, archiveDir), 0o755); err != nil {
		t.Fatal(err)
	}
	writeSession(t, filepath.Join(dir, archiveDir), sessionA+".jsonl", 64)

	srv := newUploadServer(t, http.StatusOK, "")
	j := newTestJob(t, dir, "a1")

	res := j.Run(context.Background(), srv.URL, "test-key")
	if !res.Success || res.ItemsProcessed != 0 || srv.count() != 0 {
		t.Fatalf("archived files must never be re-uploaded; result = %+v, uploads = %d", res, srv.count())
	}
}

func TestRun_AgentNotFound(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeSession(t, dir, sessionB+".jsonl", 64)

	srv := newUploadServer(t, http.StatusOK, "")

	// Job references two agents; only a1 exists in the registry.
	agents := map[string]config.Agent{"a1": {SessionsDir: dir}}
	var node yaml.Node
	if err := yaml.Unmarshal([]byte("agents: [ghost, a1]"), &node); err != nil {
		t.Fatal(err)
	}
	j, err := NewUploadJob(config.JobSpec{
		ID: "upload", Type: "session_upload", IntervalMinutes: 15, Config: node,
	}, agents, slog.Default())
	if err != nil {
		t.Fatalf("NewUploadJob: %v", err)
	}

	res := j.Run(context.Background(), srv.URL, "test-key")

	// The unknown agent is an error, but a1's upload still happened, so
	// the run counts as a partial success.
	if !res.Success || res.ItemsProcessed != 1 {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "agent not found") {
		t.Fatalf("errors = %v", res.Errors)
	}
}

func TestRun_MissingSessionsDirSkipped(t *testing.T) {
	t.Parallel()

	srv := newUploadServer(t, http.StatusOK, "")
	j := newTestJob(t, filepath.Join(t.TempDir(), "does-not-exist"), "a1")

	res := j.Run(context.Background(), srv.URL, "test-key")
	if !res.Success || res.ItemsProcessed != 0 || len(res.Errors) != 0 {
		t.Fatalf("missing dir must be a clean skip; result = %+v", res)
	}
}

func TestRun_NoAgentsConfigured(t *testing.T) {
	t.Parallel()

	j, err := NewUploadJob(config.JobSpec{
		ID: "upload", Type: "session_upload", IntervalMinutes: 15,
	}, nil, slog.Default())
	if err != nil {
		t.Fatalf("NewUploadJob: %v", err)
	}

	res := j.Run(context.Background(), "https://unused.example.com", "test-key")
	if !res.Success || res.Message != "no agents configured" {
		t.Fatalf("result = %+v", res)
	}
}

func TestSessionID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		valid bool
	}{
		{sessionA + ".jsonl", true},
		{sessionB + ".jsonl.gz", true},
		{"short.jsonl", false},
		{strings.Repeat("a", 36) + ".jsonl", false},                // 0 hyphens
		{strings.Repeat("a", 33) + "---x.jsonl", false},            // 3 hyphens
		{"1-1-1-1-1-" + strings.Repeat("a", 26) + ".jsonl", false}, // 5 hyphens
	}

	for _, tc := range cases {
		id, ok := sessionID(tc.name)
		if ok != tc.valid {
			t.Errorf("sessionID(%q) ok = %v, want %v", tc.name, ok, tc.valid)
		}
		if ok && len(id) != 36 {
			t.Errorf("sessionID(%q) = %q, want 36 chars", tc.name, id)
		}
	}
}
