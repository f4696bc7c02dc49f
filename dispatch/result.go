package dispatch

import (
	"encoding/json"
	"net/http"
)

// result is the explicit sum type spec.md §9 calls for in place of the
// source's "exception for flow control" (a thrown redirect signaling
// 303): every handler returns exactly one of ok, redirect or fail, and
// writeResult is the sole place that turns it into an HTTP response.
type result struct {
	kind     resultKind
	status   int
	body     any
	location string
	err      error
}

type resultKind uint8

const (
	kindOk resultKind = iota
	kindRedirect
	kindFail
	kindStreamed
)

// ok returns a 200 response serializing body as JSON.
func ok(body any) result {
	return result{kind: kindOk, status: http.StatusOK, body: body}
}

// streamed reports that the handler already wrote headers and body
// directly to the ResponseWriter (result streaming: sync query output,
// results/{id} GET), so writeResult has nothing left to do.
func streamed() result {
	return result{kind: kindStreamed}
}

// redirect returns a 303 See Other to location, per spec.md §6's "Create
// a new job ... 303 to new job" and the phase-change/destroy redirects.
func redirect(location string) result {
	return result{kind: kindRedirect, status: http.StatusSeeOther, location: location}
}

// fail returns an error response; status is computed from err via
// errs.StatusCode by the caller constructing this result.
func fail(status int, err error) result {
	return result{kind: kindFail, status: status, err: err}
}

// errorDocument is the JSON body of a kindFail result (spec.md §7:
// "turned into HTTP status + serialized error document by the
// dispatcher").
type errorDocument struct {
	Error string `json:"error"`
}

// writeResult renders r to w. It is the only function in this package
// that calls w.WriteHeader/w.Write for a result value, keeping every
// handler's control flow expressible as "compute a result, return it".
func writeResult(w http.ResponseWriter, r result) {
	switch r.kind {
	case kindStreamed:
		// Handler already wrote headers and body.
	case kindRedirect:
		w.Header().Set("Location", r.location)
		w.WriteHeader(r.status)
	case kindFail:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(r.status)
		json.NewEncoder(w).Encode(errorDocument{Error: r.err.Error()})
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(r.status)
		json.NewEncoder(w).Encode(r.body)
	}
}
