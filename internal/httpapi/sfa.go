package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"salesanalysis/backend/internal/actionlist"
	"salesanalysis/backend/internal/domain"
	"salesanalysis/backend/internal/service"
)

type actionStatusRequest struct {
	YearMonth string `json:"year_month"`
	ContactID string `json:"contact_id"`
	Status    string `json:"status"`
}

type actionStatusResponse struct {
	Result domain.MutationResult     `json:"result"`
	List   domain.ActionListResponse `json:"list"`
}

func (a *API) handleMaster(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	master, err := a.service.MasterData(r.Context(), parseBool(r.URL.Query().Get("refresh")))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, master)
}

func (a *API) handleDepartments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	departments, err := a.service.Departments(r.Context(), strings.TrimSpace(r.URL.Query().Get("company")))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, departments)
}

func (a *API) handleContacts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		contacts, err := a.service.Contacts(r.Context(), strings.TrimSpace(query.Get("company")), strings.TrimSpace(query.Get("department")))
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, contacts)
	case http.MethodPost:
		var req domain.ContactInput
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		result, err := a.service.AddContact(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, result)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleActivities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		activities, err := a.service.Activities(r.Context(), strings.TrimSpace(r.URL.Query().Get("sales_rep")))
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, activities)
	case http.MethodPost:
		var req domain.ActivityInput
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		result, err := a.service.RecordActivity(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, result)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleActivityActions(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/activities/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, errors.New("activity not found"))
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var req domain.ActivityInput
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		result, err := a.service.UpdateActivity(r.Context(), id, req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, result)
	case http.MethodDelete:
		result, err := a.service.DeleteActivity(r.Context(), id)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, result)
	default:
		writeMethodNotAllowed(w)
	}
}

// actionListMonth accepts either year_month=2025年4月 or year=2025&month=4.
func actionListMonth(r *http.Request) string {
	query := r.URL.Query()
	if ym := strings.TrimSpace(query.Get("year_month")); ym != "" {
		return ym
	}
	year, errYear := strconv.Atoi(strings.TrimSpace(query.Get("year")))
	month, errMonth := strconv.Atoi(strings.TrimSpace(query.Get("month")))
	if errYear != nil || errMonth != nil || month < 1 || month > 12 {
		return ""
	}
	return actionlist.YearMonthLabel(year, month)
}

func (a *API) handleActionList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	query := r.URL.Query()
	resp, err := a.service.ActionList(r.Context(), service.ActionListQuery{
		YearMonth: actionListMonth(r),
		SalesRep:  strings.TrimSpace(query.Get("sales_rep")),
		Status:    strings.TrimSpace(query.Get("status")),
		SortBy:    strings.TrimSpace(query.Get("sort")),
	})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleActionStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req actionStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, list, err := a.service.UpdateActionStatus(r.Context(), req.YearMonth, req.ContactID, req.Status)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, actionStatusResponse{Result: result, List: list})
}

func (a *API) handleProposalProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	products, err := a.service.ProposalProducts(r.Context(), strings.TrimSpace(r.URL.Query().Get("year_month")))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}
