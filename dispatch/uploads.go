package dispatch

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// uploadStage spools multipart file parts to a per-process temp
// directory and serves them back over loopback HTTP, so a
// pipeline.MetadataProvider that only knows how to fetch an http(s) URI
// (the reference StaticMetadata) can materialize a multipart upload the
// same way it materializes a remote one. A production deployment with a
// MetadataProvider that accepts raw bytes directly would skip this
// indirection entirely.
type uploadStage struct {
	dir string
}

func newUploadStage() (*uploadStage, error) {
	dir, err := os.MkdirTemp("", "tapd-uploads-*")
	if err != nil {
		return nil, fmt.Errorf("dispatch: creating upload staging dir: %w", err)
	}
	return &uploadStage{dir: dir}, nil
}

// stage copies src to a new staged file and returns a token identifying
// it, suitable for building a /_uploads/{token} URL.
func (s *uploadStage) stage(src io.Reader) (string, error) {
	token := uuid.NewString()
	f, err := os.Create(filepath.Join(s.dir, token))
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, src); err != nil {
		return "", err
	}
	return token, nil
}

// ServeHTTP streams back a staged file by token, and is mounted at
// /_uploads/{token} by Router. It is loopback-only in intent: a
// deployment fronting this service should not expose this path
// externally.
func (s *uploadStage) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := filepath.Base(r.URL.Path)
	path := filepath.Join(s.dir, token)
	f, err := os.Open(path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	http.ServeContent(w, r, token, fileModTime(f), f)
}

func fileModTime(f *os.File) (t time.Time) {
	if fi, err := f.Stat(); err == nil {
		t = fi.ModTime()
	}
	return t
}

// close removes the staging directory and everything in it.
func (s *uploadStage) close() error {
	return os.RemoveAll(s.dir)
}
