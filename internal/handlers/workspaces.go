package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/Ramachandra-2k96/AtlantaGUI-sub000/internal/database"
	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

type createWorkspaceEntryRequest struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// CreateWorkspaceEntry bookmarks a directory inside the workspace roots.
func CreateWorkspaceEntry(w http.ResponseWriter, r *http.Request) {
	if database.DB == nil {
		writeError(w, http.StatusServiceUnavailable, "Database not initialized")
		return
	}

	var req createWorkspaceEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" || len(req.Name) > 64 {
		writeError(w, http.StatusBadRequest, "name must be 1-64 characters")
		return
	}

	path, ok := confinedPath(w, req.Path)
	if !ok {
		return
	}
	if st, err := os.Stat(path); err != nil || !st.IsDir() {
		writeError(w, http.StatusBadRequest, "path is not a directory")
		return
	}

	var existing database.WorkspaceEntry
	if err := database.DB.Where("name = ?", req.Name).First(&existing).Error; err == nil {
		writeError(w, http.StatusConflict, "A bookmark with that name already exists")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusInternalServerError, "Failed to check bookmark")
		return
	}

	entry := database.WorkspaceEntry{Name: req.Name, Path: path}
	if err := database.DB.Create(&entry).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save bookmark")
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

// ListWorkspaceEntries returns all bookmarks, oldest first.
func ListWorkspaceEntries(w http.ResponseWriter, r *http.Request) {
	if database.DB == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"entries": []interface{}{}})
		return
	}

	var entries []database.WorkspaceEntry
	if err := database.DB.Order("created_at ASC").Find(&entries).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load bookmarks")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// DeleteWorkspaceEntry removes a bookmark. The directory itself is untouched.
func DeleteWorkspaceEntry(w http.ResponseWriter, r *http.Request) {
	if database.DB == nil {
		writeError(w, http.StatusServiceUnavailable, "Database not initialized")
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid bookmark ID")
		return
	}

	res := database.DB.Delete(&database.WorkspaceEntry{}, id)
	if res.Error != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete bookmark")
		return
	}
	if res.RowsAffected == 0 {
		writeError(w, http.StatusNotFound, "Bookmark not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
