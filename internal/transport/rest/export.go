package rest

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"

	"deal-service/internal/security"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func (h *Handler) exportDeals(w http.ResponseWriter, r *http.Request) {
	var req ExportDealsRequest
	if !h.decode(w, r, &req) {
		return
	}

	exportID, err := h.exports.StartDealsExport(r.Context(), req.toPayload(), req.Columns)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	SuccessAccepted(w, "export queued", map[string]any{
		"export_id": exportID,
	})
}

func (h *Handler) listExports(w http.ResponseWriter, r *http.Request) {
	p, ok := security.FromContext(r.Context())
	if !ok {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	exports, err := h.exports.GetExports(r.Context(), p.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	Success(w, "", exports)
}

func (h *Handler) getExport(w http.ResponseWriter, r *http.Request) {
	p, ok := security.FromContext(r.Context())
	if !ok {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	exportIDParam := chi.URLParam(r, "export_id")
	if exportIDParam == "" {
		ErrorBadRequest(w, "export_id is required")
		return
	}

	export, err := h.exports.GetExport(r.Context(), "exports:"+strings.TrimPrefix(exportIDParam, "exports:"), p.UserID)
	if err != nil {
		ErrorNotFound(w, "export not found")
		return
	}

	Success(w, "", export)
}

func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request) {
	path, orig, err := h.files.Open(chi.URLParam(r, "file"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		h.log.Error("open export file", zap.Error(err))
		http.Error(w, "failed to access file", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", orig))
	http.ServeFile(w, r, path)
}

func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request) {
	p, ok := security.FromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	h.ws.Serve(w, r, p.UserID)
}
