package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/semla/internal/app"
	"github.com/shrimpsizemoose/semla/internal/sqlcheck"
)

type SQLHandler struct {
	service *app.Service
}

func NewSQLHandler(service *app.Service) *SQLHandler {
	return &SQLHandler{service: service}
}

func (h *SQLHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/sql/problems/{problem}/solution", instrument(h.HandleSolution))
}

type solutionRequest struct {
	Query string `json:"query"`
}

func (h *SQLHandler) HandleSolution(w http.ResponseWriter, r *http.Request) {
	student := authorizeStudent(h.service, w, r)
	if student == "" {
		return
	}

	var req solutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	solution, err := h.service.SQL.CheckSolution(r.Context(), r.PathValue("problem"), req.Query, student)
	if err != nil {
		if errors.Is(err, sqlcheck.ErrProblemNotFound) {
			writeError(w, http.StatusNotFound, "Problem not found")
			return
		}
		logger.Error.Printf("Failed to check solution of %s: %v", student, err)
		writeError(w, http.StatusInternalServerError, "Failed to check solution")
		return
	}

	writeJSON(w, http.StatusOK, solution)
}
