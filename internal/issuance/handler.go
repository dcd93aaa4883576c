// internal/issuance/handler.go
package issuance

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"pawcademy/internal/certification"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/certifications/{id}/issue", h.HandleIssue)
	r.Post("/certificates/{certificateID}/artifact", h.HandleAttachArtifact)
}

func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	certificationID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid certification id", http.StatusBadRequest)
		return
	}

	var req struct {
		HolderName string `json:"holder_display_name"`
		DogName    string `json:"dog_display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.HolderName == "" {
		http.Error(w, "holder_display_name is required", http.StatusBadRequest)
		return
	}

	certificate, created, err := h.service.Issue(r.Context(), IssueRequest{
		CertificationID: certificationID,
		HolderName:      req.HolderName,
		DogName:         req.DogName,
	})
	if errors.Is(err, certification.ErrNotFound) {
		http.Error(w, "certification not found", http.StatusNotFound)
		return
	}
	if errors.Is(err, certification.ErrNotEligible) {
		http.Error(w, "certification is not eligible for issuance", http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if created {
		w.WriteHeader(http.StatusCreated)
	}
	json.NewEncoder(w).Encode(certificate)
}

func (h *Handler) HandleAttachArtifact(w http.ResponseWriter, r *http.Request) {
	certificateID := chi.URLParam(r, "certificateID")

	var req struct {
		StorageHandle string `json:"storage_handle"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.StorageHandle == "" {
		http.Error(w, "storage_handle is required", http.StatusBadRequest)
		return
	}

	err := h.service.AttachArtifact(r.Context(), certificateID, req.StorageHandle)
	if errors.Is(err, certification.ErrNotFound) {
		http.Error(w, "certificate not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
