package http

import (
	"net/http"

	"invoiced/internal/auth"
	"invoiced/internal/core"
	"invoiced/internal/export"
)

// Report DTOs speak euros as decimals; everything upstream is cents.
type summaryResponse struct {
	TotalIncome         float64               `json:"totalIncome"`
	PendingToAccountant float64               `json:"pendingToAccountant"`
	SentToClient        float64               `json:"sentToClient"`
	SentToAccountant    float64               `json:"sentToAccountant"`
	ByClient            []clientTotalResponse `json:"byClient"`
	ByMonth             []monthTotalResponse  `json:"byMonth"`
	ByYear              []yearTotalResponse   `json:"byYear"`
}

type clientTotalResponse struct {
	Name  string  `json:"name"`
	Total float64 `json:"total"`
}

type monthTotalResponse struct {
	Month string  `json:"month"`
	Total float64 `json:"total"`
}

type yearTotalResponse struct {
	Year  int     `json:"year"`
	Total float64 `json:"total"`
}

func toSummaryResponse(s core.Summary) summaryResponse {
	out := summaryResponse{
		TotalIncome:         s.TotalIncome.Euros(),
		PendingToAccountant: s.PendingToAccountant.Euros(),
		SentToClient:        s.SentToClient.Euros(),
		SentToAccountant:    s.SentToAccountant.Euros(),
		ByClient:            []clientTotalResponse{},
		ByMonth:             []monthTotalResponse{},
		ByYear:              []yearTotalResponse{},
	}
	for _, ct := range s.ByClient {
		out.ByClient = append(out.ByClient, clientTotalResponse{Name: ct.Name, Total: ct.Amount.Euros()})
	}
	for _, mt := range s.ByMonth {
		out.ByMonth = append(out.ByMonth, monthTotalResponse{Month: mt.Key, Total: mt.Amount.Euros()})
	}
	for _, yt := range s.ByYear {
		out.ByYear = append(out.ByYear, yearTotalResponse{Year: yt.Year, Total: yt.Amount.Euros()})
	}
	return out
}

func (s *Server) computeSummary(r *http.Request, userID string) (core.Summary, error) {
	if cached, ok := s.summaryCache.Get(userID); ok {
		return cached, nil
	}

	records, err := s.storage.ListInvoiceRecords(r.Context(), userID)
	if err != nil {
		return core.Summary{}, err
	}
	stored, err := s.storage.GetConversionRate(r.Context(), userID)
	if err != nil {
		return core.Summary{}, err
	}

	summary := core.Summarize(records, core.ParseRate(stored))
	s.summaryCache.Set(userID, summary)
	return summary, nil
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.computeSummary(r, auth.UserID(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryResponse(summary))
}

func (s *Server) handleSummaryXLSX(w http.ResponseWriter, r *http.Request) {
	summary, err := s.computeSummary(r, auth.UserID(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="summary.xlsx"`)
	// Headers are already written; a failure here truncates the body.
	_ = export.WriteSummaryXLSX(w, summary)
}
