// Package apperr defines the typed failures surfaced to booking callers.
//
// Every error carries a Kind so HTTP handlers and assistant tools can branch
// on the category without string matching. errors.Is matches on Kind.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind string

const (
	KindSlotUnavailable   Kind = "slot_unavailable"
	KindInvalidTransition Kind = "invalid_status_transition"
	KindScheduleConfig    Kind = "schedule_config"
	KindTransient         Kind = "transient_backend"
	KindExternalChannel   Kind = "external_channel"
	KindNotFound          Kind = "not_found"
	KindInvalidInput      Kind = "invalid_input"
	KindInternal          Kind = "internal"
)

// Error is a classified failure. Fields carries structured detail for the UI
// (for example the offending rule field or the current appointment status).
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Fields  map[string]string
	Err     error
}

// New returns an error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies err under kind.
func Wrap(kind Kind, op string, err error) *Error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &Error{Kind: kind, Op: op, Message: msg, Err: err}
}

// Transient marks err as a network or timeout failure talking to a backend.
func Transient(op string, err error) *Error {
	return Wrap(KindTransient, op, err)
}

// WithField returns a copy of e with an extra structured field.
func (e *Error) WithField(key, value string) *Error {
	out := *e
	out.Fields = make(map[string]string, len(e.Fields)+1)
	for k, v := range e.Fields {
		out.Fields[k] = v
	}
	out.Fields[key] = value
	return &out
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Message != "":
		return e.Message
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind onto the status code handlers respond with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindSlotUnavailable:
		return http.StatusConflict
	case KindInvalidTransition, KindScheduleConfig:
		return http.StatusUnprocessableEntity
	case KindTransient:
		return http.StatusServiceUnavailable
	case KindExternalChannel:
		return http.StatusBadGateway
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Body is the JSON error envelope returned by handlers.
type Body struct {
	Error  string            `json:"error"`
	Kind   Kind              `json:"kind"`
	Fields map[string]string `json:"fields,omitempty"`
}

// BodyOf renders err for a response. Internal errors hide their message.
func BodyOf(err error) Body {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindInternal {
		return Body{Error: "internal server error", Kind: KindInternal}
	}
	return Body{Error: e.Message, Kind: e.Kind, Fields: e.Fields}
}

// Respond writes err as a JSON envelope with the status of its kind.
func Respond(w http.ResponseWriter, err error) {
	body := BodyOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(body.Kind))
	_ = json.NewEncoder(w).Encode(body)
}
