// Package engine computes survey navigation: given a survey definition, a
// cursor position and an event, it returns the new position, the question
// payload and a status. It holds no state of its own.
package engine

import "net/http"

// Status codes carried by a Result. They map one-to-one onto HTTP.
const (
	StatusOK               = http.StatusOK
	StatusBadRequest       = http.StatusBadRequest
	StatusNotFound         = http.StatusNotFound
	StatusUnresolvedBranch = http.StatusInternalServerError
	// StatusUnavailable reports a session store or other backend failure.
	StatusUnavailable = http.StatusServiceUnavailable
)

// NotStarted is the position of a fresh or reset session.
const NotStarted = -1

// Result is the tagged outcome of every engine operation. The engine never
// returns an error across its boundary.
type Result struct {
	Position   int    `json:"position"`
	StatusCode int    `json:"status_code"`
	StatusText string `json:"status_text"`
	Payload    any    `json:"payload,omitempty"`
}

// OK reports whether the result carries status 200.
func (r Result) OK() bool { return r.StatusCode == StatusOK }

func ok(pos int, payload any) Result {
	return Result{Position: pos, StatusCode: StatusOK, StatusText: "OK", Payload: payload}
}

func fail(pos, code int, text string) Result {
	return Result{Position: pos, StatusCode: code, StatusText: text}
}

// NotFound builds a 404 result that leaves the position at pos.
func NotFound(pos int, text string) Result { return fail(pos, StatusNotFound, text) }

// Unavailable builds a 503 result with a generic text. Backend error
// details belong in logs, not in the result.
func Unavailable(pos int) Result { return fail(pos, StatusUnavailable, "session store unavailable") }

// BadRequest builds a 400 result that leaves the position at pos.
func BadRequest(pos int, text string) Result { return fail(pos, StatusBadRequest, text) }
