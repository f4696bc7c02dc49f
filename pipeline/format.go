package pipeline

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/gotap/tapd/connpool"
)

// minFlushChunk and maxFlushChunk bound the chunks in which the
// formatters below flush their bufio.Writer, per spec.md §4.5's "writes are flushed in bounded chunks (>= 4 KiB,
// <= 64 KiB) to minimize memory retention".
const (
	minFlushChunk = 4 * 1024
	maxFlushChunk = 64 * 1024
)

// CSVFormatter is a reference Formatter writing the result cursor as
// RFC 4180 CSV with a header row, using stdlib encoding/csv since no CSV
// library appears anywhere in the retrieved pack.
type CSVFormatter struct{}

func (CSVFormatter) MimeType() string   { return "text/csv" }
func (CSVFormatter) ShortAlias() string { return "csv" }

func (CSVFormatter) Write(ctx context.Context, cursor connpool.Rows, columns []ColumnDef, sink io.Writer) (int64, error) {
	bw := bufio.NewWriterSize(sink, maxFlushChunk)
	w := csv.NewWriter(bw)

	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = c.Name
	}
	if err := w.Write(header); err != nil {
		return 0, err
	}

	row := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range row {
		ptrs[i] = &row[i]
	}
	cells := make([]string, len(columns))

	var n int64
	var sinceFlush int
	for cursor.Next() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := cursor.Scan(ptrs...); err != nil {
			return n, err
		}
		for i, v := range row {
			cells[i] = fmt.Sprint(v)
		}
		if err := w.Write(cells); err != nil {
			return n, err
		}
		n++
		sinceFlush++
		if sinceFlush >= minFlushChunk {
			w.Flush()
			if err := w.Error(); err != nil {
				return n, err
			}
			sinceFlush = 0
		}
	}
	if err := cursor.Err(); err != nil {
		return n, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return n, err
	}
	return n, bw.Flush()
}

// VOTableFormatter is a minimal, non-schema-validating VOTable writer:
// enough structure (RESOURCE/TABLE/FIELD/DATA/TABLEDATA) for a client
// expecting VOTable to parse column names and rows. It is not a
// conformant VOTable implementation; no VOTable library appears
// anywhere in the retrieved pack, so this uses stdlib encoding/xml, per
// spec.md §1's carve-out ("result-format writers ... out of scope" means
// the real ones, not that the interface goes unimplemented).
type VOTableFormatter struct{}

func (VOTableFormatter) MimeType() string   { return "application/x-votable+xml" }
func (VOTableFormatter) ShortAlias() string { return "votable" }

func (VOTableFormatter) Write(ctx context.Context, cursor connpool.Rows, columns []ColumnDef, sink io.Writer) (int64, error) {
	bw := bufio.NewWriterSize(sink, maxFlushChunk)
	enc := xml.NewEncoder(bw)

	fmt.Fprint(bw, xml.Header)
	fmt.Fprint(bw, "<VOTABLE version=\"1.4\"><RESOURCE><TABLE>\n")
	for _, c := range columns {
		if err := enc.Encode(voField{Name: c.Name, Datatype: c.Type}); err != nil {
			return 0, err
		}
	}
	if err := enc.Flush(); err != nil {
		return 0, err
	}
	fmt.Fprint(bw, "<DATA><TABLEDATA>\n")

	row := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range row {
		ptrs[i] = &row[i]
	}

	var n int64
	var sinceFlush int
	for cursor.Next() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := cursor.Scan(ptrs...); err != nil {
			return n, err
		}
		cells := make([]voCell, len(row))
		for i, v := range row {
			cells[i] = voCell{Value: fmt.Sprint(v)}
		}
		if err := enc.Encode(voTR{Cells: cells}); err != nil {
			return n, err
		}
		n++
		sinceFlush += estimateRowBytes(cells)
		if sinceFlush >= minFlushChunk {
			if err := enc.Flush(); err != nil {
				return n, err
			}
			if err := bw.Flush(); err != nil {
				return n, err
			}
			sinceFlush = 0
		}
	}
	if err := cursor.Err(); err != nil {
		return n, err
	}
	if err := enc.Flush(); err != nil {
		return n, err
	}
	fmt.Fprint(bw, "</TABLEDATA></DATA></TABLE></RESOURCE></VOTABLE>")
	return n, bw.Flush()
}

func estimateRowBytes(cells []voCell) int {
	total := 0
	for _, c := range cells {
		total += len(c.Value) + len("<TD></TD>")
	}
	return total
}

type voField struct {
	XMLName  xml.Name `xml:"FIELD"`
	Name     string   `xml:"name,attr"`
	Datatype string   `xml:"datatype,attr"`
}

type voCell struct {
	XMLName xml.Name `xml:"TD"`
	Value   string   `xml:",chardata"`
}

type voTR struct {
	XMLName xml.Name `xml:"TR"`
	Cells   []voCell
}
