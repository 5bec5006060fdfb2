package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// MaxTranscriptBytes is the largest transcript the remote store accepts
// (10 MiB, bounded by its blob storage). Larger files are refused locally
// without a network call.
const MaxTranscriptBytes = 10_485_760

// uploadTimeout bounds each upload attempt end to end.
const uploadTimeout = 30 * time.Second

// Sentinel errors for upload outcomes.
var (
	ErrTranscriptTooLarge = errors.New("transcript exceeds size limit")
	ErrUploadRejected     = errors.New("upload rejected")
)

// UploadRequest is the JSON body of a session upload.
type UploadRequest struct {
	AgentID    string `json:"agentId"`
	SessionID  string `json:"sessionId"`
	Transcript string `json:"transcript"`
}

// Client posts session transcripts to the remote ingestion endpoint.
type Client struct {
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates an upload client with the default request timeout.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:   &http.Client{Timeout: uploadTimeout},
		logger: logger,
	}
}

// Upload posts one transcript to {endpoint}/sessions, authenticated via
// the api key in the query string. A 409 from the remote means the
// session was already ingested; that is reported as success so the
// caller archives the file instead of retrying it forever.
func (c *Client) Upload(ctx context.Context, endpoint, apiKey string, req UploadRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding upload: %w", err)
	}

	q := url.Values{}
	q.Set("code", apiKey)
	target := strings.TrimSuffix(endpoint, "/") + "/sessions?" + q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusConflict:
		// Already ingested remotely; archiving is safe.
		c.logger.Warn("session: already exists remotely", "session", req.SessionID)
		return nil
	case http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: remote refused %d bytes (413)", ErrUploadRejected, len(req.Transcript))
	default:
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: status %d: %s", ErrUploadRejected, resp.StatusCode, strings.TrimSpace(string(text)))
	}
}
