package handlers

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts every API route. The package-level dependencies
// (Registry, Resolver, Runner, Watcher) must be set first.
func NewRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	// Health (top level, no prefix)
	r.Get("/health", HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		// Terminal WebSocket and session management
		r.Get("/terminal", TerminalWS)
		r.Post("/terminal/sessions", CreateTerminalSession)
		r.Get("/terminal/sessions", ListTerminalSessions)
		r.Get("/terminal/sessions/{sessionId}", GetTerminalSession)
		r.Delete("/terminal/sessions/{sessionId}", DeleteTerminalSession)

		// Workspace files
		r.Get("/files/browse", BrowseFiles)
		r.Get("/files/read", ReadFileContent)
		r.Get("/files/download", DownloadFile)
		r.Post("/files/write", WriteFileContent)
		r.Post("/files/mkdir", CreateDirectory)
		r.Delete("/files", DeletePath)
		r.Post("/files/upload", UploadFile)

		// Workspace change events
		r.Get("/events", EventsWS)

		// Workspace bookmarks
		r.Post("/workspaces", CreateWorkspaceEntry)
		r.Get("/workspaces", ListWorkspaceEntries)
		r.Delete("/workspaces/{id}", DeleteWorkspaceEntry)

		// Test generation jobs
		r.Post("/jobs", StartJob)
		r.Get("/jobs", ListJobs)
		r.Get("/jobs/{jobId}", GetJob)
		r.Post("/jobs/{jobId}/cancel", CancelJob)
		r.Get("/jobs/{jobId}/log", GetJobLog)

		// Server logs
		r.Get("/server/logs", GetServerLogs)
		r.Delete("/server/logs", ClearServerLogs)
	})

	return r
}
