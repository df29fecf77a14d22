package http

import (
	"net/http"

	"invoiced/internal/auth"
	"invoiced/internal/core"
)

type clientPayload struct {
	Name             string   `json:"name"`
	Currency         string   `json:"currency"`
	Email            string   `json:"email"`
	CC               []string `json:"cc"`
	RequireTimesheet bool     `json:"require_timesheet"`
}

type clientResponse struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Currency         string   `json:"currency"`
	Email            string   `json:"email"`
	CC               []string `json:"cc"`
	RequireTimesheet bool     `json:"require_timesheet"`
}

func toClientResponse(c core.Client) clientResponse {
	cc := c.CC
	if cc == nil {
		cc = []string{}
	}
	return clientResponse{
		ID:               c.ID,
		Name:             c.Name,
		Currency:         c.Currency,
		Email:            c.Email,
		CC:               cc,
		RequireTimesheet: c.RequireTimesheet,
	}
}

func (p clientPayload) toCore() core.Client {
	currency := p.Currency
	if currency == "" {
		currency = core.CurrencyEUR
	}
	return core.Client{
		Name:             p.Name,
		Currency:         currency,
		Email:            p.Email,
		CC:               p.CC,
		RequireTimesheet: p.RequireTimesheet,
	}
}

func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var payload clientPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	client := payload.toCore()
	if err := client.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}

	created, err := s.storage.CreateClient(r.Context(), auth.UserID(r.Context()), client)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toClientResponse(created))
}

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.storage.ListClients(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]clientResponse, 0, len(clients))
	for _, c := range clients {
		out = append(out, toClientResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	client, err := s.storage.GetClient(r.Context(), auth.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientResponse(client))
}

func (s *Server) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	var payload clientPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	client := payload.toCore()
	client.ID = r.PathValue("id")
	if err := client.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}

	userID := auth.UserID(r.Context())
	if err := s.storage.UpdateClient(r.Context(), userID, client); err != nil {
		writeDomainError(w, err)
		return
	}
	s.invalidateSummary(userID)
	writeJSON(w, http.StatusOK, toClientResponse(client))
}

func (s *Server) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if err := s.storage.DeleteClient(r.Context(), userID, r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	s.invalidateSummary(userID)
	w.WriteHeader(http.StatusNoContent)
}
