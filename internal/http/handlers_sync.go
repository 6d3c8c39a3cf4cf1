package http

import (
	"io"
	"net/http"
	"strings"

	"fintrack/internal/impexp"
	"fintrack/internal/reconcile"
)

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}
	sess, err := s.authorize(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := s.tracker.Export(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	filename := "finance_backup_" + sess.User.Username + "_" + doc.ExportDate.Format("2006-01-02") + ".json"
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}
	if _, err := s.authorize(r); err != nil {
		writeError(w, r, err)
		return
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed reading request body"})
		return
	}
	doc, err := impexp.Parse(raw)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.tracker.Import(r.Context(), doc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleSync runs a reconciliation cycle on demand. The reason parameter
// distinguishes focus and visibility wakeups from an explicit manual
// request.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}
	if _, err := s.authorize(r); err != nil {
		writeError(w, r, err)
		return
	}

	trigger := reconcile.TriggerManual
	switch strings.TrimSpace(r.URL.Query().Get("reason")) {
	case "focus":
		trigger = reconcile.TriggerFocus
	case "visibility":
		trigger = reconcile.TriggerVisibility
	}

	status, err := s.tracker.SyncNow(r.Context(), trigger)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}
	if _, err := s.authorize(r); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.tracker.SyncStatus())
}
