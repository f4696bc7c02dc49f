package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/gotap/tapd/connpool"
	"github.com/gotap/tapd/param"
)

// Tree is an opaque parsed-query representation. The real ADQL grammar
// is out of scope for the core (spec.md §1); Tree is whatever the
// configured Parser produces and the configured Translator consumes.
type Tree any

// ParseError reports a syntax error with its position preserved, per
// spec.md §4.5's PARSING stage.
type ParseError struct {
	Position int
	Message  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("pipeline: parse error at %d: %s", e.Position, e.Message)
}

// Parser turns query text into a Tree. Implementations are expected to
// be swapped out for a production ADQL grammar; this package's adql.go
// provides a minimal SELECT/FROM/WHERE/TOP recognizer as a reference.
type Parser interface {
	Parse(ctx context.Context, query string) (Tree, error)
}

// Translator lowers a Tree into executable SQL. limit is the row-count
// ceiling the pipeline has already computed from MAXREC and the
// server's configured cap (spec.md §4.5's "inject a row limit" rule);
// the translator adds a LIMIT of that value, unless the query already
// carries a smaller row limit of its own (SQLTranslator keeps a smaller
// TOP). limit < 0 means no limit should be injected (unlimited).
type Translator interface {
	Translate(ctx context.Context, tree Tree, limit int64) (sqlText string, err error)
}

// Formatter streams a result cursor to sink, reporting the column
// descriptors and any per-row errors it encounters. MimeType and
// ShortAlias let the dispatcher resolve the FORMAT standard parameter
// (a MIME type or a short alias like "csv") to a Formatter.
type Formatter interface {
	MimeType() string
	ShortAlias() string
	Write(ctx context.Context, cursor connpool.Rows, columns []ColumnDef, sink io.Writer) (rowsWritten int64, err error)
}

// TableDef describes one table the MetadataProvider publishes. The
// reference Recognizer and SQLTranslator do not consult it; FROM clauses
// pass through unchecked.
type TableDef struct {
	Name    string
	Columns []ColumnDef
}

// MetadataProvider is the registry of published tables and the owner of
// the per-job upload namespace (spec.md §4.5 UPLOADING, §5 "each job
// owns a disjoint sub-namespace keyed by jobId").
type MetadataProvider interface {
	// ListTables returns the tables visible to query translation.
	ListTables(ctx context.Context) ([]TableDef, error)

	// MaterializeUpload fetches up's data and creates it as a temporary
	// table in jobID's upload namespace, visible to the translator as
	// TAP_UPLOAD.<up.Name>. It fails with errs.ErrUploadFailed wrapped
	// detail on any transport or parse error, including a URI that goes
	// unreachable partway through transfer (spec.md §9 open question).
	MaterializeUpload(ctx context.Context, jobID string, up param.Upload) error

	// DropUploads removes every temporary table in jobID's upload
	// namespace. It is idempotent: calling it on a namespace that is
	// already empty is a no-op, which is what makes the UPLOADING
	// stage's "drop previous before creating new" rule safe to run
	// unconditionally.
	DropUploads(ctx context.Context, jobID string) error
}
