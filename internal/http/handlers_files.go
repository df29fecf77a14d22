package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"invoiced/internal/auth"
	"invoiced/internal/core"
)

type fileResponse struct {
	ID          string `json:"id"`
	InvoiceID   string `json:"invoice_id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	Position    int    `json:"position"`
}

func toFileResponse(f core.InvoiceFile) fileResponse {
	return fileResponse{
		ID:          f.ID,
		InvoiceID:   f.InvoiceID,
		FileName:    f.FileName,
		ContentType: f.ContentType,
		SizeBytes:   f.SizeBytes,
		Position:    f.Position,
	}
}

// handleUploadFile accepts one multipart "document" part and queues
// extraction for it.
func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}

	part, header, err := r.FormFile("document")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing document part")
		return
	}
	defer part.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}

	userID := auth.UserID(r.Context())
	file, err := s.invoices.AttachFile(r.Context(), userID, r.PathValue("id"),
		header.Filename, contentType, header.Size, part)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.metrics.RecordUpload()
	s.invalidateSummary(userID)
	writeJSON(w, http.StatusCreated, toFileResponse(file))
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	invoiceID := r.PathValue("id")
	// Ownership gate; files themselves are keyed by invoice only.
	if _, err := s.storage.GetInvoice(r.Context(), userID, invoiceID); err != nil {
		writeDomainError(w, err)
		return
	}

	files, err := s.storage.ListInvoiceFiles(r.Context(), invoiceID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]fileResponse, 0, len(files))
	for _, f := range files {
		out = append(out, toFileResponse(f))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	file, rc, err := s.invoices.OpenFile(r.Context(), userID, r.PathValue("id"), r.PathValue("fileID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer rc.Close()

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(file.FileName))
	if file.SizeBytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(file.SizeBytes, 10))
	}
	io.Copy(w, rc)
}
