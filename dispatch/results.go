package dispatch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileResultSink persists a completed job's formatted output as one file
// per job under a base directory (spec.md §5's "File-system artifacts:
// per-job subdirectory; deletion on destruction"), satisfying both
// worker.ResultSink and destruct.ResultRemover. No library in the
// retrieved pack addresses local result-file storage; this is plain
// stdlib os/path, justified in DESIGN.md as pure filesystem I/O with no
// ecosystem equivalent to wire instead.
type FileResultSink struct {
	BaseDir string

	// Store returns a server-relative href of the form
	// "/async/{jobID}/results/{resultID}"; on disk the artifact lives at
	// BaseDir/{jobID}/{resultID}.
}

// NewFileResultSink ensures baseDir exists and returns a sink rooted there.
func NewFileResultSink(baseDir string) (*FileResultSink, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("dispatch: creating result base dir: %w", err)
	}
	return &FileResultSink{BaseDir: baseDir}, nil
}

func (s *FileResultSink) path(jobID, resultID string) string {
	return filepath.Join(s.BaseDir, jobID, resultID)
}

// Store writes body to jobID's per-job subdirectory under resultID and
// returns an href the dispatcher's results handler can resolve back to
// the same path.
func (s *FileResultSink) Store(_ context.Context, jobID, resultID string, body io.Reader) (string, error) {
	dir := filepath.Join(s.BaseDir, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("dispatch: creating job result dir: %w", err)
	}
	f, err := os.Create(s.path(jobID, resultID))
	if err != nil {
		return "", fmt.Errorf("dispatch: creating result file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, body); err != nil {
		return "", fmt.Errorf("dispatch: writing result file: %w", err)
	}
	return fmt.Sprintf("/async/%s/results/%s", jobID, resultID), nil
}

// Open returns a reader over a previously stored result, for the
// results GET handler to stream back.
func (s *FileResultSink) Open(jobID, resultID string) (*os.File, error) {
	return os.Open(s.path(jobID, resultID))
}

// Remove deletes jobID's entire result subdirectory. It is a no-op (not
// an error) if the directory never existed, matching spec.md §9's
// "destruction of a job deletes result files" applying equally to jobs
// that never produced one.
func (s *FileResultSink) Remove(_ context.Context, jobID string) error {
	err := os.RemoveAll(filepath.Join(s.BaseDir, jobID))
	if err != nil {
		return fmt.Errorf("dispatch: removing job result dir: %w", err)
	}
	return nil
}
