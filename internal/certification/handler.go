// internal/certification/handler.go
package certification

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the write-path endpoints: collaborator event ingestion,
// catalog reconciliation and the UI read projections.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/records/ensure", h.HandleEnsureRecords)
	r.Post("/events/course-completed", h.HandleCourseCompleted)
	r.Post("/events/quiz-scored", h.HandleQuizScored)
	r.Post("/events/training-day", h.HandleTrainingDayLogged)
	r.Get("/certifications/{id}", h.HandleSnapshot)
	r.Get("/certifications/{id}/history", h.HandleHistory)
	r.Get("/achievements", h.HandleAchievements)
}

func (h *Handler) HandleEnsureRecords(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID uuid.UUID `json:"user_id"`
		DogID  uuid.UUID `json:"dog_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	certs, err := h.service.EnsureRecords(r.Context(), req.UserID, req.DogID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(certs)
}

func (h *Handler) HandleCourseCompleted(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   uuid.UUID `json:"user_id"`
		DogID    uuid.UUID `json:"dog_id"`
		CourseID uuid.UUID `json:"course_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.RecordCourseCompletion(r.Context(), req.UserID, req.DogID, req.CourseID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) HandleQuizScored(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   uuid.UUID `json:"user_id"`
		DogID    uuid.UUID `json:"dog_id"`
		CourseID uuid.UUID `json:"course_id"`
		Score    float64   `json:"score"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.RecordQuizScore(r.Context(), req.UserID, req.DogID, req.CourseID, req.Score); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) HandleTrainingDayLogged(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID uuid.UUID `json:"user_id"`
		DogID  uuid.UUID `json:"dog_id"`
		Date   string    `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	day, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	if err := h.service.RecordTrainingDay(r.Context(), req.UserID, req.DogID, day); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid certification id", http.StatusBadRequest)
		return
	}

	snapshot, err := h.service.GetSnapshot(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "certification not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshot)
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid certification id", http.StatusBadRequest)
		return
	}

	events, err := h.service.History(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}

func (h *Handler) HandleAchievements(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	dogID := uuid.Nil
	if raw := r.URL.Query().Get("dog_id"); raw != "" {
		dogID, err = uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid dog id", http.StatusBadRequest)
			return
		}
	}

	achievements, err := h.service.ListAchievements(r.Context(), userID, dogID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(achievements)
}
