package main

import (
	"encoding/json"
	"errors"
	"net/http"

	groundtruth "github.com/relief-labs/groundtruth"
	"github.com/relief-labs/groundtruth/internal/verifyqueue"
)

type handlers struct {
	svc *groundtruth.Service
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusForError maps service errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, groundtruth.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, groundtruth.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, groundtruth.ErrImageFetchFailed):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func (h *handlers) geocode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LocationName string `json:"location_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.LocationName == "" {
		writeError(w, http.StatusBadRequest, "Location name is required")
		return
	}

	loc, err := h.svc.Geocode(r.Context(), req.LocationName)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (h *handlers) extractLocation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "Text is required")
		return
	}

	location, err := h.svc.ExtractLocation(r.Context(), req.Text)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	if location == groundtruth.UnknownLocation {
		writeError(w, http.StatusBadRequest, "Could not extract location from text")
		return
	}

	loc, err := h.svc.Geocode(r.Context(), location)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"location_name": location,
		"coordinates": map[string]any{
			"type":        "Point",
			"coordinates": []float64{loc.Longitude, loc.Latitude},
		},
	})
}

func (h *handlers) verifyImage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ImageURL    string `json:"image_url"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	v, err := h.svc.VerifyImage(r.Context(), req.ImageURL, req.Description)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *handlers) enqueueVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReportID    string `json:"report_id"`
		DisasterID  string `json:"disaster_id"`
		ImageURL    string `json:"image_url"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ReportID == "" || req.ImageURL == "" {
		writeError(w, http.StatusBadRequest, "report_id and image_url are required")
		return
	}

	h.svc.EnqueueVerification(r.Context(), verifyqueue.Job{
		ReportID:    req.ReportID,
		DisasterID:  req.DisasterID,
		ImageURL:    req.ImageURL,
		Description: req.Description,
	})
	// Accepted regardless of queue pressure: verification is best effort and
	// the report keeps its pending status until a verdict lands.
	writeJSON(w, http.StatusAccepted, map[string]string{
		"report_id":           req.ReportID,
		"verification_status": "pending",
	})
}
