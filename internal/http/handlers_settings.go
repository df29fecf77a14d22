package http

import (
	"net/http"
	"strconv"
	"strings"

	"invoiced/internal/auth"
	"invoiced/internal/core"
)

type conversionRateResponse struct {
	Rate float64 `json:"rate"`
	// Set is false while the user still rides the default rate.
	Set bool `json:"set"`
}

func (s *Server) handleGetConversionRate(w http.ResponseWriter, r *http.Request) {
	stored, err := s.storage.GetConversionRate(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conversionRateResponse{
		Rate: core.ParseRate(stored),
		Set:  strings.TrimSpace(stored) != "",
	})
}

func (s *Server) handlePutConversionRate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Rate float64 `json:"rate"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.Rate <= 0 {
		writeError(w, http.StatusBadRequest, "rate must be a positive number")
		return
	}

	userID := auth.UserID(r.Context())
	stored := strconv.FormatFloat(payload.Rate, 'f', -1, 64)
	if err := s.storage.SetConversionRate(r.Context(), userID, stored); err != nil {
		writeDomainError(w, err)
		return
	}
	s.invalidateSummary(userID)
	writeJSON(w, http.StatusOK, conversionRateResponse{Rate: payload.Rate, Set: true})
}
