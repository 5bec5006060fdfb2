package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// indexFile is the per-agent active-session index. Its keys are the ids
// of sessions still being written to.
const indexFile = "sessions.json"

// archiveDir is the terminal location for handled session files, relative
// to the sessions directory.
const archiveDir = "archive"

// candidate is one completed session file eligible for upload.
type candidate struct {
	path string
	id   string
	size int64
}

// activeSessions reads the set of in-progress session ids from the
// agent's index file. A missing index means no active sessions; an
// unreadable or malformed one degrades to the same, with a warning —
// failing to upload is worse than occasionally uploading a session
// early, and the remote side treats re-delivery as idempotent.
func (u *UploadJob) activeSessions(dir string) map[string]struct{} {
	raw, err := os.ReadFile(filepath.Join(dir, indexFile))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			u.logger.Warn("session: reading sessions index", "dir", dir, "error", err)
		}
		return nil
	}

	var index map[string]json.RawMessage
	if err := json.Unmarshal(raw, &index); err != nil {
		u.logger.Warn("session: malformed sessions index, treating all sessions as completed",
			"dir", dir,
			"error", err,
		)
		return nil
	}

	active := make(map[string]struct{}, len(index))
	for id := range index {
		active[id] = struct{}{}
	}
	return active
}

// findCompleted scans the sessions directory (non-recursive, so archived
// files are never revisited) for transcript files not in the active set.
// Files whose name does not carry a well-formed session id are reported
// as errors rather than silently dropped.
func (u *UploadJob) findCompleted(dir string, active map[string]struct{}) ([]candidate, []string) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.jsonl*"))
	if err != nil {
		// Only reachable with a malformed pattern; ours is fixed.
		return nil, []string{fmt.Sprintf("scanning %s: %v", dir, err)}
	}

	var out []candidate
	var errs []string

	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		name := filepath.Base(path)
		id, ok := sessionID(name)
		if !ok {
			errs = append(errs, "invalid session filename: "+name)
			continue
		}
		if _, isActive := active[id]; isActive {
			continue
		}

		out = append(out, candidate{path: path, id: id, size: info.Size()})
	}

	return out, errs
}

// sessionID extracts the UUID prefix from a session filename. Valid ids
// are exactly 36 characters with exactly 4 hyphens.
func sessionID(name string) (string, bool) {
	if len(name) < 36 {
		return "", false
	}
	id := name[:36]
	if strings.Count(id, "-") != 4 {
		return "", false
	}
	return id, true
}

// archive moves a handled session file into the archive/ subdirectory,
// creating it on demand. The rename removes the file from future
// candidate scans, which is what prevents duplicate uploads across
// cycles.
func archive(path, dir string) error {
	dest := filepath.Join(dir, archiveDir)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}
	return os.Rename(path, filepath.Join(dest, filepath.Base(path)))
}
