package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesOnKind(t *testing.T) {
	sentinel := New(KindSlotUnavailable, "", "slot is no longer available")
	err := fmt.Errorf("booking: commit: %w", New(KindSlotUnavailable, "booking.Book", "taken"))

	assert.True(t, errors.Is(err, sentinel))
	assert.False(t, errors.Is(err, New(KindTransient, "", "")))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindTransient, KindOf(Transient("rules.list", context.DeadlineExceeded)))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.True(t, IsKind(fmt.Errorf("wrap: %w", New(KindNotFound, "", "missing")), KindNotFound))
	assert.False(t, IsKind(nil, KindNotFound))
}

func TestTransientUnwraps(t *testing.T) {
	err := Transient("appointments.list", context.DeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "appointments.list")
}

func TestWithFieldCopies(t *testing.T) {
	base := New(KindScheduleConfig, "", "break outside working hours")
	withField := base.WithField("field", "break_start")

	assert.Empty(t, base.Fields)
	assert.Equal(t, "break_start", withField.Fields["field"])
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindSlotUnavailable:   http.StatusConflict,
		KindInvalidTransition: http.StatusUnprocessableEntity,
		KindScheduleConfig:    http.StatusUnprocessableEntity,
		KindTransient:         http.StatusServiceUnavailable,
		KindExternalChannel:   http.StatusBadGateway,
		KindNotFound:          http.StatusNotFound,
		KindInvalidInput:      http.StatusBadRequest,
		KindInternal:          http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, HTTPStatus(kind), string(kind))
	}
}

func TestBodyOfHidesInternal(t *testing.T) {
	body := BodyOf(errors.New("pq: password authentication failed"))
	require.Equal(t, KindInternal, body.Kind)
	assert.Equal(t, "internal server error", body.Error)

	body = BodyOf(New(KindInvalidTransition, "op", "cannot move").WithField("current_status", "cancelled"))
	assert.Equal(t, KindInvalidTransition, body.Kind)
	assert.Equal(t, "cancelled", body.Fields["current_status"])
}

func TestRespond(t *testing.T) {
	rec := httptest.NewRecorder()
	Respond(rec, New(KindSlotUnavailable, "booking.Book", "slot is no longer available"))

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"kind":"slot_unavailable"`)
}
