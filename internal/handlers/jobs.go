package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Ramachandra-2k96/AtlantaGUI-sub000/internal/atpg"
	"github.com/go-chi/chi/v5"
)

// Runner drives the external test pattern generator. Set from main.
var Runner *atpg.Runner

type startJobRequest struct {
	Circuit string   `json:"circuit"`
	Args    []string `json:"args,omitempty"`
}

func StartJob(w http.ResponseWriter, r *http.Request) {
	if Runner == nil {
		writeError(w, http.StatusServiceUnavailable, "Job runner not initialized")
		return
	}

	var req startJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Circuit == "" {
		writeError(w, http.StatusBadRequest, "circuit field required")
		return
	}

	job, err := Runner.Start(req.Circuit, req.Args)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Failed to start job: %v", err))
		return
	}

	writeJSON(w, http.StatusCreated, job.Status())
}

func ListJobs(w http.ResponseWriter, r *http.Request) {
	if Runner == nil {
		writeError(w, http.StatusServiceUnavailable, "Job runner not initialized")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	recs, err := Runner.List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load job history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": recs})
}

func GetJob(w http.ResponseWriter, r *http.Request) {
	if Runner == nil {
		writeError(w, http.StatusServiceUnavailable, "Job runner not initialized")
		return
	}

	job := Runner.Get(chi.URLParam(r, "jobId"))
	if job == nil {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	writeJSON(w, http.StatusOK, job.Status())
}

func CancelJob(w http.ResponseWriter, r *http.Request) {
	if Runner == nil {
		writeError(w, http.StatusServiceUnavailable, "Job runner not initialized")
		return
	}

	if err := Runner.Cancel(chi.URLParam(r, "jobId")); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

func GetJobLog(w http.ResponseWriter, r *http.Request) {
	if Runner == nil {
		writeError(w, http.StatusServiceUnavailable, "Job runner not initialized")
		return
	}

	job := Runner.Get(chi.URLParam(r, "jobId"))
	if job == nil {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}

	lines := 0
	if v := r.URL.Query().Get("lines"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid lines")
			return
		}
		lines = n
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":    job.ID,
		"lines": job.Log(lines),
	})
}
