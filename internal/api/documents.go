package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/blueberrycongee/inferd/internal/ingest"
	"github.com/blueberrycongee/inferd/pkg/types"
)

// handleDocumentUpload serves POST /api/documents/upload. The body is a
// multipart form with the document in the "file" field.
func (h *Handler) handleDocumentUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(ingest.MaxFileSize); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, ingest.MaxFileSize+1))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	if len(content) > ingest.MaxFileSize {
		h.writeError(w, http.StatusRequestEntityTooLarge, "file exceeds size limit")
		return
	}

	chunks, report, err := h.processor.Process(content, header.Filename)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	added := h.engine.AddDocuments(r.Context(), chunks)
	h.logger.Info("document ingested",
		"filename", report.Filename,
		"chunks", added,
		"bytes", report.Size)

	h.writeJSON(w, http.StatusOK, types.UploadResult{
		Filename:    report.Filename,
		ChunksAdded: added,
		ContentHash: report.ContentHash,
		Status:      "success",
	})
}

// handleDocumentsClear serves POST /api/documents/clear.
func (h *Handler) handleDocumentsClear(w http.ResponseWriter, r *http.Request) {
	removed := h.engine.ClearDocuments(r.Context())
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"removed": removed,
	})
}

// handleDocumentSearch serves GET /api/documents/search?q=...&k=N.
func (h *Handler) handleDocumentSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "q parameter is required")
		return
	}

	k := 0
	if raw := r.URL.Query().Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "k must be a positive integer")
			return
		}
		k = parsed
	}

	chunks, err := h.engine.SearchDocuments(r.Context(), query, k)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if chunks == nil {
		chunks = []types.DocumentChunk{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"results": chunks,
	})
}
