package http

import (
	"net/http"

	"ledger/internal/log"
)

// Summary parameters are lenient: a bad days or month value falls back to
// its default instead of failing the request.

func (s *Server) handleDailySummary(w http.ResponseWriter, r *http.Request) {
	days, err := s.api.DailySummary(r.Context(), r.URL.Query().Get("days"))
	if err != nil {
		writeError(w, r, log.OpSummary, err)
		return
	}
	NewJSONResponse().Data(toDailyJSON(days)).Write(w)
}

func (s *Server) handleCategorySummary(w http.ResponseWriter, r *http.Request) {
	cats, err := s.api.CategorySummary(r.Context(), r.URL.Query().Get("days"))
	if err != nil {
		writeError(w, r, log.OpSummary, err)
		return
	}
	NewJSONResponse().Data(toCategoryTotalsJSON(cats)).Write(w)
}

func (s *Server) handleMonthlySummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.api.MonthlySummary(r.Context(), r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, r, log.OpSummary, err)
		return
	}
	NewJSONResponse().Data(toMonthlyJSON(summary)).Write(w)
}
