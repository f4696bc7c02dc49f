package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gotap/tapd/param"
)

// StaticMetadata is a reference MetadataProvider: a fixed table list
// plus an in-memory per-job upload namespace. MaterializeUpload fetches
// the upload's URI over HTTP and records only its byte size (it does
// not parse any particular upload wire format, which is a
// MetadataProvider-internal concern spec.md §1 leaves external); a
// production deployment swaps this for one backed by the real metadata
// registry and upload table materializer.
type StaticMetadata struct {
	Tables []TableDef

	HTTPClient *http.Client

	mu      sync.Mutex
	uploads map[string]map[string]uploadedTable // jobID -> name -> table
}

type uploadedTable struct {
	uri  string
	size int64
}

// NewStaticMetadata returns a StaticMetadata publishing tables.
func NewStaticMetadata(tables []TableDef) *StaticMetadata {
	return &StaticMetadata{
		Tables:     tables,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		uploads:    make(map[string]map[string]uploadedTable),
	}
}

func (m *StaticMetadata) ListTables(context.Context) ([]TableDef, error) {
	return m.Tables, nil
}

func (m *StaticMetadata) MaterializeUpload(ctx context.Context, jobID string, up param.Upload) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, up.URI, nil)
	if err != nil {
		return fmt.Errorf("pipeline: malformed upload uri %q: %w", up.URI, err)
	}
	resp, err := m.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("pipeline: upload uri %q unreachable: %w", up.URI, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("pipeline: upload uri %q returned status %d", up.URI, resp.StatusCode)
	}

	var size int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := resp.Body.Read(buf)
		size += int64(n)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("pipeline: upload uri %q became unreachable partway through transfer: %w", up.URI, err)
		}
		if n == 0 {
			break
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploads[jobID] == nil {
		m.uploads[jobID] = make(map[string]uploadedTable)
	}
	m.uploads[jobID][up.Name] = uploadedTable{uri: up.URI, size: size}
	return nil
}

func (m *StaticMetadata) DropUploads(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.uploads, jobID)
	return nil
}

// UploadCount reports how many upload tables are currently materialized
// for jobID; it is zero once DropUploads has run for that job.
func (m *StaticMetadata) UploadCount(jobID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.uploads[jobID])
}
