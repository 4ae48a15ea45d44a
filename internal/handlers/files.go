package handlers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/Ramachandra-2k96/AtlantaGUI-sub000/internal/workspace"
)

// Resolver confines every file operation to the configured workspace roots.
// Set from main before the router is mounted.
var Resolver *workspace.Resolver

const maxUploadBytes = 32 << 20

type fileEntry struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Size        *string `json:"size"`
	Permissions string  `json:"permissions"`
}

func BrowseFiles(w http.ResponseWriter, r *http.Request) {
	if Resolver == nil {
		writeError(w, http.StatusServiceUnavailable, "Workspace resolver not initialized")
		return
	}

	dirPath := Resolver.Resolve(r.URL.Query().Get("path"))

	dirEntries, err := os.ReadDir(dirPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list directory: %v", err))
		return
	}

	entries := make([]fileEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		entry := fileEntry{
			Name:        de.Name(),
			Permissions: formatPermissions(de),
		}

		if de.IsDir() {
			entry.Type = "dir"
		} else if de.Type()&fs.ModeSymlink != 0 {
			entry.Type = "link"
		} else {
			entry.Type = "file"
		}

		if info, err := de.Info(); err == nil && !de.IsDir() {
			size := fmt.Sprintf("%d", info.Size())
			entry.Size = &size
		}

		entries = append(entries, entry)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"path":    dirPath,
		"entries": entries,
	})
}

func ReadFileContent(w http.ResponseWriter, r *http.Request) {
	filePath, ok := confinedPath(w, r.URL.Query().Get("path"))
	if !ok {
		return
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read file: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"path":    filePath,
		"content": base64.StdEncoding.EncodeToString(data),
	})
}

func DownloadFile(w http.ResponseWriter, r *http.Request) {
	filePath, ok := confinedPath(w, r.URL.Query().Get("path"))
	if !ok {
		return
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to download file: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filepath.Base(filePath)))
	w.Write(data)
}

func WriteFileContent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path    string `json:"path"`
		Content string `json:"content"` // base64
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	filePath, ok := confinedPath(w, body.Path)
	if !ok {
		return
	}

	data, err := base64.StdEncoding.DecodeString(body.Content)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid base64 content")
		return
	}

	start := time.Now()
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to write file: %v", err))
		return
	}
	log.Printf("[files] WriteFileContent path=%s size=%d duration=%s", filePath, len(data), time.Since(start))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"path":    filePath,
	})
}

func CreateDirectory(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	dirPath, ok := confinedPath(w, body.Path)
	if !ok {
		return
	}

	if err := os.MkdirAll(dirPath, 0755); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to create directory: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"path":    dirPath,
	})
}

func DeletePath(w http.ResponseWriter, r *http.Request) {
	target, ok := confinedPath(w, r.URL.Query().Get("path"))
	if !ok {
		return
	}
	if Resolver != nil {
		for _, root := range Resolver.Roots() {
			if target == root {
				writeError(w, http.StatusBadRequest, "Cannot delete a workspace root")
				return
			}
		}
	}

	if err := os.RemoveAll(target); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to delete: %v", err))
		return
	}
	log.Printf("[files] DeletePath path=%s", target)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"path":    target,
	})
}

func UploadFile(w http.ResponseWriter, r *http.Request) {
	dirPath := r.URL.Query().Get("path")
	if dirPath == "" {
		writeError(w, http.StatusBadRequest, "path parameter required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read upload")
		return
	}

	fullPath := path.Join(dirPath, header.Filename)
	if strings.HasSuffix(dirPath, header.Filename) {
		fullPath = dirPath
	}
	target, ok := confinedPath(w, fullPath)
	if !ok {
		return
	}

	start := time.Now()
	if err := os.WriteFile(target, content, 0644); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to upload file: %v", err))
		return
	}
	log.Printf("[files] UploadFile path=%s size=%d duration=%s", target, len(content), time.Since(start))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"path":     target,
		"filename": header.Filename,
	})
}

// confinedPath maps a requested path into the workspace, rejecting anything
// that escapes the configured roots.
func confinedPath(w http.ResponseWriter, requested string) (string, bool) {
	if Resolver == nil {
		writeError(w, http.StatusServiceUnavailable, "Workspace resolver not initialized")
		return "", false
	}
	if requested == "" {
		writeError(w, http.StatusBadRequest, "path parameter required")
		return "", false
	}
	resolved, err := Resolver.Within(requested)
	if err != nil {
		writeError(w, http.StatusForbidden, "Path outside workspace")
		return "", false
	}
	return resolved, true
}

func formatPermissions(de fs.DirEntry) string {
	info, err := de.Info()
	if err != nil {
		return "----------"
	}
	return info.Mode().String()
}
