// internal/verification/handler.go
package verification

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

type Handler struct {
	service Service
	limiter *rate.Limiter
}

// NewHandler wraps the service with a rate limiter; the endpoint is public
// and unauthenticated, so id probing has to stay expensive.
func NewHandler(service Service) *Handler {
	return &Handler{
		service: service,
		limiter: rate.NewLimiter(rate.Limit(20), 40),
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/verify/{certificateID}", h.HandleVerify)
}

func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow() {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	record, err := h.service.Verify(r.Context(), chi.URLParam(r, "certificateID"))
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "certificate not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(record)
}
