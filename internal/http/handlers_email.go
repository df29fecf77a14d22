package http

import (
	"net/http"

	"invoiced/internal/auth"
	"invoiced/internal/core"
	"invoiced/internal/mail"
)

func (s *Server) handleSendInvoice(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	userID := auth.UserID(r.Context())
	invoice, err := s.sender.SendInvoice(r.Context(), userID, r.PathValue("id"), mail.SendOptions{
		Subject: payload.Subject,
		Body:    payload.Body,
	})
	if err != nil {
		s.metrics.RecordEmail(serviceName, "error")
		writeDomainError(w, err)
		return
	}

	s.metrics.RecordEmail(serviceName, "sent")
	s.invalidateSummary(userID)
	writeJSON(w, http.StatusOK, toInvoiceResponse(invoice))
}

type emailAccountPayload struct {
	Kind         string `json:"kind"`
	Address      string `json:"address"`
	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"smtp_password"`
	TokenFile    string `json:"token_file"`
}

// emailAccountResponse never carries the SMTP password back out.
type emailAccountResponse struct {
	Kind         string `json:"kind"`
	Address      string `json:"address"`
	SMTPHost     string `json:"smtp_host,omitempty"`
	SMTPPort     int    `json:"smtp_port,omitempty"`
	SMTPUsername string `json:"smtp_username,omitempty"`
	TokenFile    string `json:"token_file,omitempty"`
}

func toEmailAccountResponse(a core.EmailAccount) emailAccountResponse {
	return emailAccountResponse{
		Kind:         a.Kind,
		Address:      a.Address,
		SMTPHost:     a.SMTPHost,
		SMTPPort:     a.SMTPPort,
		SMTPUsername: a.SMTPUsername,
		TokenFile:    a.TokenFile,
	}
}

func (s *Server) handleGetEmailAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.storage.GetEmailAccount(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmailAccountResponse(account))
}

func (s *Server) handlePutEmailAccount(w http.ResponseWriter, r *http.Request) {
	var payload emailAccountPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	account := core.EmailAccount{
		Kind:         payload.Kind,
		Address:      payload.Address,
		SMTPHost:     payload.SMTPHost,
		SMTPPort:     payload.SMTPPort,
		SMTPUsername: payload.SMTPUsername,
		SMTPPassword: payload.SMTPPassword,
		TokenFile:    payload.TokenFile,
	}
	if err := account.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	saved, err := s.storage.UpsertEmailAccount(r.Context(), auth.UserID(r.Context()), account)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmailAccountResponse(saved))
}
