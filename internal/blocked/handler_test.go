package blocked

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBlockedRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/doctors/{doctorID}/blocked", h.List)
	r.Post("/doctors/{doctorID}/blocked", h.Create)
	r.Delete("/doctors/{doctorID}/blocked", h.PurgeExpired)
	r.Delete("/doctors/{doctorID}/blocked/{periodID}", h.Delete)
	return r
}

func TestHandlerCreateListDelete(t *testing.T) {
	h := NewHandler(NewInMemoryRepository(), nil)
	h.now = func() time.Time { return monday }
	router := newBlockedRouter(h)

	body := `{"start_datetime":"2025-03-03T10:00:00Z","end_datetime":"2025-03-03T11:00:00Z","reason":"staff meeting"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/doctors/doc-1/blocked", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created Period
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "doc-1", created.DoctorID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/doctors/doc-1/blocked", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "staff meeting")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/doctors/doc-1/blocked/"+created.ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/doctors/doc-1/blocked/"+created.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerRejectsInvertedPeriod(t *testing.T) {
	router := newBlockedRouter(NewHandler(NewInMemoryRepository(), nil))

	body := `{"start_datetime":"2025-03-03T11:00:00Z","end_datetime":"2025-03-03T10:00:00Z"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/doctors/doc-1/blocked", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"invalid_input"`)
}

func TestHandlerPurgeExpired(t *testing.T) {
	repo := NewInMemoryRepository()
	_, err := repo.Create(t.Context(), Period{DoctorID: "doc-1", Start: at("10:00"), End: at("11:00")})
	require.NoError(t, err)
	router := newBlockedRouter(NewHandler(repo, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/doctors/doc-1/blocked?expired_before=2025-03-04T00:00:00Z", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":1}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/doctors/doc-1/blocked?expired_before=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
