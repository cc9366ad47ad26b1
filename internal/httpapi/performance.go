package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"salesanalysis/backend/internal/dashboard"
	"salesanalysis/backend/internal/service"
)

func performanceQuery(r *http.Request) service.PerformanceQuery {
	query := r.URL.Query()
	return service.PerformanceQuery{
		Customer: strings.TrimSpace(query.Get("customer")),
		Rep:      strings.TrimSpace(query.Get("rep")),
	}
}

func (a *API) handlePerformance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	view, err := a.service.Performance(r.Context(), performanceQuery(r))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handlePerformanceSort toggles the sort field; the filters come from the
// query string as for GET /api/v1/performance.
func (a *API) handlePerformanceSort(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req sortRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := a.service.SortPerformance(r.Context(), strings.TrimSpace(req.Field), performanceQuery(r))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handlePerformanceBreakdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	breakdown, err := a.service.PerformanceBreakdown(r.Context(), r.URL.Query().Get("rep"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, breakdown)
}

func (a *API) handlePerformanceCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeMethodNotAllowed(w)
		return
	}
	a.service.ClearPerformance(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// handleDashboard serves ?year=2025&month=4&sales_rep=&result=; without a
// year and month the current month is summarized.
func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	query := r.URL.Query()
	q := dashboard.Query{
		SalesRep: strings.TrimSpace(query.Get("sales_rep")),
		Result:   strings.TrimSpace(query.Get("result")),
	}
	if raw := strings.TrimSpace(query.Get("year")); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil || year < 1 {
			a.writeServiceError(w, service.ErrInvalidInput)
			return
		}
		q.Year = year
	}
	if raw := strings.TrimSpace(query.Get("month")); raw != "" {
		month, err := strconv.Atoi(raw)
		if err != nil || month < 1 {
			a.writeServiceError(w, service.ErrInvalidInput)
			return
		}
		q.Month = month
	}
	summary, err := a.service.Dashboard(r.Context(), q)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
