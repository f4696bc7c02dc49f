package dispatch

import "net/http"

// UserIdentifier resolves the calling identity for a request, per
// spec.md §6: identify(request) -> userId | null. An empty string means
// anonymous.
type UserIdentifier interface {
	Identify(r *http.Request) string
}

// HeaderIdentifier is the reference UserIdentifier: it trusts an
// upstream-set header verbatim. Authentication itself is explicitly out
// of scope (spec.md §1 Non-goals: "does not define authentication");
// this is a stand-in for whatever front-end a deployment puts in front
// of the service.
type HeaderIdentifier struct {
	Header string // defaults to "X-Tap-User" via NewHeaderIdentifier
}

// NewHeaderIdentifier returns a HeaderIdentifier reading the given
// header name, or "X-Tap-User" if name is empty.
func NewHeaderIdentifier(name string) HeaderIdentifier {
	if name == "" {
		name = "X-Tap-User"
	}
	return HeaderIdentifier{Header: name}
}

func (h HeaderIdentifier) Identify(r *http.Request) string {
	return r.Header.Get(h.Header)
}
