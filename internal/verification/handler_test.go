package verification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type stubService struct {
	records map[string]*IssuanceRecord
}

func (s *stubService) Verify(ctx context.Context, certificateID string) (*IssuanceRecord, error) {
	record, ok := s.records[certificateID]
	if !ok {
		return nil, ErrNotFound
	}
	return record, nil
}

func newTestRouter(h *Handler) *chi.Mux {
	router := chi.NewRouter()
	h.Routes(router)
	return router
}

func TestHandleVerifyReturnsIssuanceRecord(t *testing.T) {
	issued := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	stub := &stubService{records: map[string]*IssuanceRecord{
		"MFRGG2LTMVXHI2LBNQQGS43V": {
			CertificateID: "MFRGG2LTMVXHI2LBNQQGS43V",
			Fingerprint:   "Q5J2K3L4",
			TypeName:      "Grundgehorsam",
			Level:         "bronze",
			HolderName:    "Anna Berger",
			DogName:       "Bello",
			IssuedAt:      issued,
		},
	}}
	router := newTestRouter(NewHandler(stub))

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/verify/MFRGG2LTMVXHI2LBNQQGS43V", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	var record IssuanceRecord
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&record))
	assert.Equal(t, "Grundgehorsam", record.TypeName)
	assert.Equal(t, "Anna Berger", record.HolderName)
	assert.Equal(t, "Bello", record.DogName)
	assert.True(t, record.IssuedAt.Equal(issued))
}

func TestHandleVerifyUnknownIDIsNotFound(t *testing.T) {
	router := newTestRouter(NewHandler(&stubService{}))

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/verify/NEVERISSUED", nil))

	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestHandleVerifyIsRateLimited(t *testing.T) {
	handler := &Handler{
		service: &stubService{},
		limiter: rate.NewLimiter(rate.Limit(0), 1),
	}
	router := newTestRouter(handler)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/verify/FIRST", nil))
	assert.Equal(t, http.StatusNotFound, recorder.Code)

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/verify/SECOND", nil))
	assert.Equal(t, http.StatusTooManyRequests, recorder.Code)
}
