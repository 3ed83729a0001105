package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/semla/internal/app"
	"github.com/shrimpsizemoose/semla/internal/models"
	"github.com/shrimpsizemoose/semla/internal/scoring"
	"github.com/shrimpsizemoose/semla/internal/store"
)

type SubmissionHandler struct {
	service *app.Service
}

func NewSubmissionHandler(service *app.Service) *SubmissionHandler {
	return &SubmissionHandler{service: service}
}

func (h *SubmissionHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/submissions", instrument(h.HandleSubmit))
	mux.HandleFunc("GET /api/v1/submissions/{id}", instrument(h.HandleGet))
	mux.HandleFunc("POST /api/v1/submissions/{id}/verdict", instrument(h.HandleVerdict))
	mux.HandleFunc("GET /api/v1/summary", instrument(h.HandleSummary))
}

// HandleSubmit accepts a multipart form with "day" and either an archive in
// "file" or a "demo_video" link for the freeform day.
func (h *SubmissionHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	student := authorizeStudent(h.service, w, r)
	if student == "" {
		return
	}

	maxBytes := h.service.Config.API.MaxUploadMB << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid upload")
		return
	}

	up := scoring.Upload{
		Student:   student,
		Day:       r.FormValue("day"),
		DemoVideo: r.FormValue("demo_video"),
	}

	if up.Day != models.FreeformDay {
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "Please upload a zip file.")
			return
		}
		defer file.Close()

		up.Archive, err = h.service.Blobs.Save(header.Filename, file)
		if err != nil {
			logger.Error.Printf("Failed to store upload from %s: %v", student, err)
			writeError(w, http.StatusInternalServerError, "Failed to store upload")
			return
		}
	}

	sub, err := h.service.Grader.EvaluateSubmission(r.Context(), up)
	if err != nil {
		if up.Archive != "" {
			if rmErr := h.service.Blobs.Remove(up.Archive); rmErr != nil {
				logger.Error.Printf("Failed to remove rejected upload %s: %v", up.Archive, rmErr)
			}
		}

		var inputErr *scoring.InputError
		if errors.As(err, &inputErr) {
			writeError(w, http.StatusUnprocessableEntity, inputErr.Message)
			return
		}
		logger.Error.Printf("Failed to evaluate submission of %s: %v", student, err)
		writeError(w, http.StatusInternalServerError, "Failed to evaluate submission")
		return
	}

	writeJSON(w, http.StatusCreated, sub)
}

func (h *SubmissionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	student := authorizeStudent(h.service, w, r)
	if student == "" {
		return
	}

	sub, err := h.service.Store.GetSubmission(r.Context(), r.PathValue("id"))
	if err != nil {
		logger.Error.Printf("Failed to fetch submission: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch submission")
		return
	}
	if sub == nil || sub.Student != student {
		writeError(w, http.StatusNotFound, "Submission not found")
		return
	}

	writeJSON(w, http.StatusOK, sub)
}

type verdictRequest struct {
	Status   models.SubmissionStatus `json:"status"`
	Feedback string                  `json:"feedback"`
}

// HandleVerdict is called by the external checker once it finishes with a
// submission that is in progress. It is guarded by the required headers only.
func (h *SubmissionHandler) HandleVerdict(w http.ResponseWriter, r *http.Request) {
	if !h.service.ValidateHeaders(r.Header) {
		http.Error(w, "these are not the droids you are looking for", http.StatusForbidden)
		return
	}

	var req verdictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sub, err := h.service.Grader.CompleteCheck(r.Context(), r.PathValue("id"), req.Status, req.Feedback)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, sub)
	case errors.Is(err, scoring.ErrInvalidVerdict):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Submission not found")
	case errors.Is(err, scoring.ErrStaleSubmission):
		writeError(w, http.StatusConflict, err.Error())
	default:
		logger.Error.Printf("Failed to record verdict: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to record verdict")
	}
}

func (h *SubmissionHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	student := authorizeStudent(h.service, w, r)
	if student == "" {
		return
	}

	summary, err := h.service.Grader.Summary(r.Context(), student)
	if err != nil {
		logger.Error.Printf("Failed to build summary for %s: %v", student, err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch summary")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
