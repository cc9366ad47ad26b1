package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"salesanalysis/backend/internal/analysis"
	"salesanalysis/backend/internal/domain"
	"salesanalysis/backend/internal/service"
)

const analysisPrefix = "/api/v1/analysis/"

type keyRequest struct {
	Key string `json:"key"`
}

type sortRequest struct {
	Field string `json:"field"`
}

// handleAnalysis serves /api/v1/analysis/{mode}/{action}.
func (a *API) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, analysisPrefix), "/")
	modeRaw, action, ok := strings.Cut(rest, "/")
	if !ok || action == "" {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	mode, err := domain.ParseMode(modeRaw)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	switch action {
	case "status":
		a.analysisStatus(w, r, mode)
	case "load":
		a.analysisLoad(w, r, mode)
	case "staleness":
		a.analysisStaleness(w, r, mode)
	case "cache":
		a.analysisInvalidate(w, r, mode)
	case "options":
		a.analysisOptions(w, r, mode)
	case "search":
		a.analysisSearch(w, r, mode)
	case "clear":
		a.analysisClear(w, r, mode)
	case "suggest/clients":
		a.analysisSuggestClients(w, r, mode)
	case "suggest/reps":
		a.analysisSuggestReps(w, r, mode)
	case "select/client":
		a.analysisSelectSuggestion(w, r, mode, a.service.SelectClientSuggestion)
	case "select/rep":
		a.analysisSelectSuggestion(w, r, mode, a.service.SelectRepSuggestion)
	case "drill/rep":
		a.analysisDrillRep(w, r, mode)
	case "drill/client":
		a.analysisDrillClient(w, r, mode)
	case "back":
		a.analysisBack(w, r, mode)
	case "sort":
		a.analysisSort(w, r, mode)
	case "view":
		a.analysisView(w, r, mode)
	default:
		writeError(w, http.StatusNotFound, errors.New("not found"))
	}
}

func (a *API) analysisStatus(w http.ResponseWriter, r *http.Request, mode domain.Mode) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	status, err := a.service.Status(mode)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) analysisLoad(w http.ResponseWriter, r *http.Request, mode domain.Mode) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	status, err := a.service.Load(r.Context(), mode)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) analysisStaleness(w http.ResponseWriter, r *http.Request, mode domain.Mode) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	staleness, err := a.service.CheckStaleness(r.Context(), mode)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, staleness)
}

func (a *API) analysisInvalidate(w http.ResponseWriter, r *http.Request, mode domain.Mode) {
	if r.Method != http.MethodDelete {
		writeMethodNotAllowed(w)
		return
	}
	status, err := a.service.Invalidate(r.Context(), mode)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) analysisOptions(w http.ResponseWriter, r *http.Request, mode domain.Mode) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	options, err := a.service.FilterOptions(mode, strings.TrimSpace(r.URL.Query().Get("abbr")))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, options)
}

// analysisSearch runs the filter. A body replaces the stored criteria; an
// empty body searches with what was set before.
func (a *API) analysisSearch(w http.ResponseWriter, r *http.Request, mode domain.Mode) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var criteria analysis.Criteria
	present, err := decodeOptionalJSON(r, &criteria)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var view service.View
	if present {
		view, err = a.service.SearchWith(mode, criteria)
	} else {
		view, err = a.service.Search(mode)
	}
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) analysisClear(w http.ResponseWriter, r *http.Request, mode domain.Mode) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	view, err := a.service.ClearFilters(mode)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) analysisSuggestClients(w http.ResponseWriter, r *http.Request, mode domain.Mode) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	query := r.URL.Query()
	suggestions, err := a.service.SuggestClients(mode, query.Get("q"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	limit := parsePositiveLimit(query.Get("limit"), analysis.MaxSuggestions, analysis.MaxSuggestions)
	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	writeJSON(w, http.StatusOK, suggestions)
}

func (a *API) analysisSuggestReps(w http.ResponseWriter, r *http.Request, mode domain.Mode) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	query := r.URL.Query()
	suggestions, err := a.service.SuggestReps(mode, query.Get("q"), strings.TrimSpace(query.Get("abbr")))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	limit := parsePositiveLimit(query.Get("limit"), analysis.MaxSuggestions, analysis.MaxSuggestions)
	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	writeJSON(w, http.StatusOK, suggestions)
}

func (a *API) analysisSelectSuggestion(w http.ResponseWriter, r *http.Request, mode domain.Mode, selectFn func(domain.Mode, string) (analysis.Criteria, error)) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req keyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	criteria, err := selectFn(mode, req.Key)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, criteria)
}

func (a *API) analysisDrillRep(w http.ResponseWriter, r *http.Request, mode domain.Mode) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req keyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := a.service.SelectRep(r.Context(), mode, req.Key)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) analysisDrillClient(w http.ResponseWriter, r *http.Request, mode domain.Mode) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req keyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := a.service.SelectClient(mode, req.Key)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) analysisBack(w http.ResponseWriter, r *http.Request, mode domain.Mode) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	view, err := a.service.Back(mode)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) analysisSort(w http.ResponseWriter, r *http.Request, mode domain.Mode) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req sortRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := a.service.SortReps(mode, req.Field)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) analysisView(w http.ResponseWriter, r *http.Request, mode domain.Mode) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	view, err := a.service.View(mode)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
