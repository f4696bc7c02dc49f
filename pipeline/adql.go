package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// query is the Tree produced by Recognizer: a minimal decomposition of
// an ADQL SELECT statement, enough to drive SQLTranslator's lowering to
// Postgres-flavored SQL. It is not a general ADQL AST; the real grammar
// is an external collaborator per spec.md §1.
type query struct {
	top     int64 // -1 if absent
	columns string
	from    string
	where   string // may be empty
}

// Recognizer is a reference Parser recognizing a SELECT [TOP n] cols
// FROM table [WHERE cond] subset of ADQL, case-insensitively. It exists
// so the pipeline builds and runs end to end; production deployments
// swap it for a real ADQL grammar.
type Recognizer struct{}

func (Recognizer) Parse(_ context.Context, text string) (Tree, error) {
	trimmed := strings.TrimSpace(text)
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") {
		return nil, &ParseError{Position: 0, Message: "expected SELECT"}
	}
	rest := trimmed[len("SELECT"):]
	upperRest := strings.ToUpper(rest)

	q := query{top: -1}

	rest = strings.TrimLeft(rest, " \t\n")
	upperRest = strings.ToUpper(rest)
	if strings.HasPrefix(upperRest, "TOP") {
		fields := strings.Fields(rest)
		if len(fields) < 2 {
			return nil, &ParseError{Position: len("SELECT"), Message: "TOP requires a count"}
		}
		n, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, &ParseError{Position: len("SELECT"), Message: "malformed TOP count"}
		}
		q.top = n
		rest = strings.TrimPrefix(strings.TrimSpace(rest), fields[0])
		rest = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rest), fields[1]))
	}

	fromIdx := indexKeyword(rest, "FROM")
	if fromIdx < 0 {
		return nil, &ParseError{Position: len(text) - len(rest), Message: "expected FROM"}
	}
	q.columns = strings.TrimSpace(rest[:fromIdx])
	if q.columns == "" {
		return nil, &ParseError{Position: len(text) - len(rest), Message: "empty column list"}
	}
	rest = rest[fromIdx+len("FROM"):]

	whereIdx := indexKeyword(rest, "WHERE")
	if whereIdx >= 0 {
		q.from = strings.TrimSpace(rest[:whereIdx])
		q.where = strings.TrimSpace(rest[whereIdx+len("WHERE"):])
	} else {
		q.from = strings.TrimSpace(rest)
	}
	if q.from == "" {
		return nil, &ParseError{Position: len(text), Message: "empty table reference"}
	}
	return q, nil
}

// indexKeyword finds the first case-insensitive whole-word occurrence
// of kw in s, or -1.
func indexKeyword(s, kw string) int {
	upper := strings.ToUpper(s)
	kw = strings.ToUpper(kw)
	for i := 0; i+len(kw) <= len(upper); i++ {
		if upper[i:i+len(kw)] != kw {
			continue
		}
		before := i == 0 || !isWordByte(upper[i-1])
		after := i+len(kw) == len(upper) || !isWordByte(upper[i+len(kw)])
		if before && after {
			return i
		}
	}
	return -1
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// SQLTranslator is a reference Translator lowering a Recognizer query
// into Postgres-flavored SQL, injecting the MAXREC-derived LIMIT per
// spec.md §4.5.
type SQLTranslator struct{}

func (SQLTranslator) Translate(_ context.Context, tree Tree, limit int64) (string, error) {
	q, ok := tree.(query)
	if !ok {
		return "", fmt.Errorf("pipeline: translator given a non-Recognizer tree")
	}
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(q.columns)
	b.WriteString(" FROM ")
	b.WriteString(q.from)
	if q.where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(q.where)
	}
	effectiveLimit := limit
	if q.top >= 0 && (effectiveLimit < 0 || q.top < effectiveLimit) {
		effectiveLimit = q.top
	}
	if effectiveLimit >= 0 {
		fmt.Fprintf(&b, " LIMIT %d", effectiveLimit)
	}
	return b.String(), nil
}
