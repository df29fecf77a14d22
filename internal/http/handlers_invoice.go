package http

import (
	"net/http"
	"time"

	"invoiced/internal/auth"
	"invoiced/internal/core"
	"invoiced/internal/storage"
)

// Amounts travel as integer cents on the wire; the reporting endpoints
// are the only place euros appear as decimals.
type invoicePayload struct {
	ClientID       string `json:"client_id"`
	AmountCents    int64  `json:"amount_cents"`
	AmountEURCents *int64 `json:"amount_eur_cents"`
	Year           int    `json:"year"`
	Month          int    `json:"month"`
}

type invoiceResponse struct {
	ID                 string     `json:"id"`
	ClientID           string     `json:"client_id"`
	AmountCents        int64      `json:"amount_cents"`
	AmountEURCents     *int64     `json:"amount_eur_cents"`
	Year               int        `json:"year"`
	Month              int        `json:"month"`
	SentToClient       bool       `json:"sent_to_client"`
	SentToClientAt     *time.Time `json:"sent_to_client_at"`
	SentToAccountant   bool       `json:"sent_to_accountant"`
	SentToAccountantAt *time.Time `json:"sent_to_accountant_at"`
	PaymentReceived    bool       `json:"payment_received"`
	PaymentReceivedAt  *time.Time `json:"payment_received_at"`
	ExtractionStatus   string     `json:"extraction_status"`
}

func toInvoiceResponse(inv core.Invoice) invoiceResponse {
	var eur *int64
	if inv.AmountEUR != nil {
		cents := inv.AmountEUR.Cents
		eur = &cents
	}
	return invoiceResponse{
		ID:                 inv.ID,
		ClientID:           inv.ClientID,
		AmountCents:        inv.Amount.Cents,
		AmountEURCents:     eur,
		Year:               inv.Year,
		Month:              inv.Month,
		SentToClient:       inv.Flags.SentToClient,
		SentToClientAt:     inv.Flags.SentToClientAt,
		SentToAccountant:   inv.Flags.SentToAccountant,
		SentToAccountantAt: inv.Flags.SentToAccountantAt,
		PaymentReceived:    inv.Flags.PaymentReceived,
		PaymentReceivedAt:  inv.Flags.PaymentReceivedAt,
		ExtractionStatus:   inv.ExtractionStatus,
	}
}

func (p invoicePayload) toCore() core.Invoice {
	inv := core.Invoice{
		ClientID: p.ClientID,
		Amount:   core.Money{Cents: p.AmountCents},
		Year:     p.Year,
		Month:    p.Month,
	}
	if p.AmountEURCents != nil {
		inv.AmountEUR = &core.Money{Cents: *p.AmountEURCents}
	}
	return inv
}

func (s *Server) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var payload invoicePayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	invoice := payload.toCore()
	if err := invoice.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}

	userID := auth.UserID(r.Context())
	// The referenced client must belong to the same user.
	if _, err := s.storage.GetClient(r.Context(), userID, invoice.ClientID); err != nil {
		writeDomainError(w, err)
		return
	}

	created, err := s.storage.CreateInvoice(r.Context(), userID, invoice)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.invalidateSummary(userID)
	writeJSON(w, http.StatusCreated, toInvoiceResponse(created))
}

func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := s.storage.ListInvoices(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]invoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, toInvoiceResponse(inv))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	invoice, err := s.storage.GetInvoice(r.Context(), auth.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceResponse(invoice))
}

func (s *Server) handleUpdateInvoice(w http.ResponseWriter, r *http.Request) {
	var payload invoicePayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	invoice := payload.toCore()
	invoice.ID = r.PathValue("id")
	if err := invoice.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}

	userID := auth.UserID(r.Context())
	if err := s.storage.UpdateInvoice(r.Context(), userID, invoice); err != nil {
		writeDomainError(w, err)
		return
	}
	s.invalidateSummary(userID)

	updated, err := s.storage.GetInvoice(r.Context(), userID, invoice.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceResponse(updated))
}

func (s *Server) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if err := s.invoices.DeleteInvoice(r.Context(), userID, r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	s.invalidateSummary(userID)
	w.WriteHeader(http.StatusNoContent)
}

// handleUpdateFlags patches the three workflow booleans. Absent fields
// stay untouched; the flags have no enforced order.
func (s *Server) handleUpdateFlags(w http.ResponseWriter, r *http.Request) {
	var patch struct {
		SentToClient     *bool `json:"sent_to_client"`
		SentToAccountant *bool `json:"sent_to_accountant"`
		PaymentReceived  *bool `json:"payment_received"`
	}
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID := auth.UserID(r.Context())
	updated, err := s.storage.UpdateFlags(r.Context(), userID, r.PathValue("id"), storage.FlagPatch{
		SentToClient:     patch.SentToClient,
		SentToAccountant: patch.SentToAccountant,
		PaymentReceived:  patch.PaymentReceived,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.invalidateSummary(userID)
	writeJSON(w, http.StatusOK, toInvoiceResponse(updated))
}
