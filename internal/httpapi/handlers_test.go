package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"salesanalysis/backend/internal/cache"
	"salesanalysis/backend/internal/domain"
	"salesanalysis/backend/internal/loader"
	"salesanalysis/backend/internal/service"
	"salesanalysis/backend/internal/sheetapi"
	"salesanalysis/backend/internal/store/memory"
)

const testPassword = "team-password"

// fakeSheet answers reads from a fixed action→data table and records writes.
type fakeSheet struct {
	mu    sync.Mutex
	data  map[string]any
	fail  map[string]string
	posts []map[string]any
}

func newFakeSheet() *fakeSheet {
	record := func(rep string, client string, code string, amount int64) map[string]any {
		return map[string]any{
			"registYearMonth": "2025/04",
			"abbr":            "TK",
			"branch":          "東京",
			"repName":         rep,
			"clientName":      client,
			"customerName":    client + " 本店",
			"productCode":     code,
			"productName":     "商品" + code,
			"quantity":        1,
			"unitPrice":       amount,
		}
	}

	return &fakeSheet{
		data: map[string]any{
			sheetapi.ActionSalesAnalysisData: []map[string]any{
				record("山田 太郎", "株式会社テスト", "P1", 1000),
				record("山田 太郎", "(株)テスト", "P2", 2000),
				record("鈴木 一郎", "ABC", "P1", 500),
			},
			sheetapi.ActionCustomerPhones:    map[string]any{"phones": map[string]string{"東京": "03-1111-1111"}},
			sheetapi.ActionSheetLastModified: map[string]any{"lastModified": "2025-04-01T00:00:00Z"},
			sheetapi.ActionAllMasterData: domain.MasterData{
				Customers:   []string{"テスト"},
				Departments: map[string][]string{"テスト": {"営業部"}},
				Contacts:    map[string][]string{"テスト_営業部": {"田中"}},
			},
			sheetapi.ActionActivities: []map[string]any{},
			sheetapi.ActionActionList: []domain.ActionItem{
				{ID: "1", YearMonth: "2025年4月", SalesRep: "山田", Company: "テスト", Status: "pending"},
				{ID: "2", YearMonth: "2025年4月", SalesRep: "鈴木", Company: "ABC", Status: "completed"},
			},
			sheetapi.ActionProposalProducts: []domain.ProposalProduct{{Code: "P1", Name: "商品P1"}},
		},
		fail: map[string]string{},
	}
}

func (f *fakeSheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method == http.MethodPost {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.posts = append(f.posts, body)
		f.mu.Unlock()
		return
	}

	action := r.URL.Query().Get("action")
	f.mu.Lock()
	msg, failed := f.fail[action]
	data, ok := f.data[action]
	f.mu.Unlock()

	switch {
	case failed:
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
	case !ok:
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "unknown action"})
	default:
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
	}
}

func (f *fakeSheet) failAction(action string, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[action] = msg
}

func (f *fakeSheet) postCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts)
}

// newTestAPI builds a full API over a fake sheet backend, in-memory caches,
// a real AuthManager and a real Service so handler tests exercise the
// complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()
	api, _ := newTestAPIWithSheet(t)
	return api
}

func newTestAPIWithSheet(t *testing.T) (*API, *fakeSheet) {
	t.Helper()

	fake := newFakeSheet()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	client := sheetapi.New(server.URL, server.Client(), nil)
	store := cache.NewStore(memory.New(0), nil, nil)
	l, err := loader.New(client, store, 0, nil)
	if err != nil {
		t.Fatalf("loader: %v", err)
	}
	svc := service.New(l, client, store, cache.NewMemoryMasterCache(nil), service.CacheTTL{Master: time.Hour}, nil)
	auth := NewAuthManager("test-secret-key-with-32-characters!", time.Hour, mustHashPassword(t, testPassword))

	return New(svc, auth, "*", nil), fake
}

// mustHashPassword generates a bcrypt hash of the given password or fails the test.
func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func login(t *testing.T, handler http.Handler) string {
	t.Helper()
	payload, _ := json.Marshal(domain.LoginRequest{Password: testPassword})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return resp.AccessToken
}

// call sends an authenticated request and decodes the JSON response into dest
// when dest is not nil.
func call(t *testing.T, handler http.Handler, token string, method string, path string, body any, dest any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if dest != nil {
		if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
			t.Fatalf("%s %s: decode body: %v", method, path, err)
		}
	}
	return rec.Code
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{"password": testPassword})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["access_token"] == "" || body["access_token"] == nil {
		t.Fatalf("expected access_token in response, got %v", body)
	}
	if body["expires_at"] == "" || body["expires_at"] == nil {
		t.Fatalf("expected expires_at in response, got %v", body)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{"password": "wrongpassword"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleAnalysis_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analysis/order/status", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	if code := call(t, api.Handler(), "not-a-token", http.MethodGet, "/api/v1/analysis/order/status", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with a bad token, got %d", code)
	}
}

func TestHandleAnalysis_UnknownModeAndAction(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler)

	if code := call(t, handler, token, http.MethodGet, "/api/v1/analysis/weekly/status", nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown mode, got %d", code)
	}
	if code := call(t, handler, token, http.MethodGet, "/api/v1/analysis/order/nothing", nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown action, got %d", code)
	}
	if code := call(t, handler, token, http.MethodGet, "/api/v1/analysis/order/load", nil, nil); code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET load, got %d", code)
	}
}

func TestHandleAnalysis_ViewBeforeLoad(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler)

	if code := call(t, handler, token, http.MethodPost, "/api/v1/analysis/estimate/search", nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 for search before any load, got %d", code)
	}

	var view service.View
	if code := call(t, handler, token, http.MethodGet, "/api/v1/analysis/estimate/view", nil, &view); code != http.StatusOK {
		t.Fatalf("expected 200 for view, got %d", code)
	}
	if view.View != "exited" {
		t.Fatalf("expected no drilldown before any search, got %q", view.View)
	}

	var status service.Status
	if code := call(t, handler, token, http.MethodGet, "/api/v1/analysis/estimate/status", nil, &status); code != http.StatusOK {
		t.Fatalf("expected 200 for status, got %d", code)
	}
	if status.Loaded {
		t.Fatalf("expected unloaded status, got %+v", status)
	}
}

func TestHandleAnalysis_LoadSearchAndDrill(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler)
	base := "/api/v1/analysis/estimate/"

	var status service.Status
	if code := call(t, handler, token, http.MethodPost, base+"load", nil, &status); code != http.StatusOK {
		t.Fatalf("expected 200 for load, got %d", code)
	}
	if !status.Loaded || status.RecordCount != 3 {
		t.Fatalf("unexpected status after load: %+v", status)
	}

	var view service.View
	if code := call(t, handler, token, http.MethodPost, base+"search", nil, &view); code != http.StatusOK {
		t.Fatalf("expected 200 for search, got %d", code)
	}
	if view.View != "rep" || len(view.Reps) != 2 || view.TotalAmount != 3500 {
		t.Fatalf("unexpected rep view: %+v", view)
	}
	if view.Reps[0].RepLastName != "山田" || view.Reps[0].Phone != "03-1111-1111" {
		t.Fatalf("expected 山田 first with branch phone, got %+v", view.Reps[0])
	}

	if code := call(t, handler, token, http.MethodPost, base+"drill/rep", keyRequest{Key: "山田"}, &view); code != http.StatusOK {
		t.Fatalf("expected 200 for drill/rep, got %d", code)
	}
	if view.View != "client" || len(view.Clients) != 1 || view.Clients[0].TotalAmount != 3000 {
		t.Fatalf("expected spellings merged into one client, got %+v", view.Clients)
	}

	if code := call(t, handler, token, http.MethodPost, base+"drill/client", keyRequest{Key: "テスト"}, &view); code != http.StatusOK {
		t.Fatalf("expected 200 for drill/client, got %d", code)
	}
	if view.View != "product" || len(view.Products) != 2 {
		t.Fatalf("unexpected product view: %+v", view.Products)
	}

	if code := call(t, handler, token, http.MethodPost, base+"back", nil, &view); code != http.StatusOK || view.View != "client" {
		t.Fatalf("expected back to client view, got %d %q", code, view.View)
	}

	if code := call(t, handler, token, http.MethodPost, base+"select/rep", keyRequest{Key: "鈴木"}, nil); code != http.StatusOK {
		t.Fatalf("expected 200 for select/rep, got %d", code)
	}
	narrowed := map[string]any{"abbr": "TK"}
	if code := call(t, handler, token, http.MethodPost, base+"search", narrowed, &view); code != http.StatusOK {
		t.Fatalf("expected 200 for narrowed search, got %d", code)
	}
	if len(view.Reps) != 1 || view.TotalAmount != 500 {
		t.Fatalf("expected only 鈴木, got %+v", view.Reps)
	}
}

func TestHandleAnalysis_ConflictsAndBadInput(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler)
	base := "/api/v1/analysis/estimate/"

	if code := call(t, handler, token, http.MethodPost, base+"load", nil, nil); code != http.StatusOK {
		t.Fatalf("expected 200 for load, got %d", code)
	}
	if code := call(t, handler, token, http.MethodPost, base+"back", nil, nil); code != http.StatusConflict {
		t.Fatalf("expected 409 for back before any search, got %d", code)
	}
	if code := call(t, handler, token, http.MethodPost, base+"search", nil, nil); code != http.StatusOK {
		t.Fatalf("expected 200 for search, got %d", code)
	}
	if code := call(t, handler, token, http.MethodPost, base+"sort", sortRequest{Field: "color"}, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown sort field, got %d", code)
	}
	if code := call(t, handler, token, http.MethodPost, base+"drill/rep", keyRequest{Key: "田中"}, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown rep, got %d", code)
	}
	if code := call(t, handler, token, http.MethodPost, base+"search", map[string]any{"colour": "red"}, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown criteria field, got %d", code)
	}
}

func TestHandleAnalysis_UpstreamMessageIsShown(t *testing.T) {
	api, fake := newTestAPIWithSheet(t)
	handler := api.Handler()
	token := login(t, handler)
	fake.failAction(sheetapi.ActionSalesAnalysisData, "シートが見つかりません")

	var body map[string]any
	if code := call(t, handler, token, http.MethodPost, "/api/v1/analysis/estimate/load", nil, &body); code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", code)
	}
	if body["error"] != "シートが見つかりません" {
		t.Fatalf("expected the upstream message verbatim, got %v", body["error"])
	}
}

func TestHandleAnalysis_SuggestionsAndOptions(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler)
	base := "/api/v1/analysis/estimate/"

	if code := call(t, handler, token, http.MethodPost, base+"load", nil, nil); code != http.StatusOK {
		t.Fatalf("expected 200 for load, got %d", code)
	}

	var clients []domain.ClientSuggestion
	if code := call(t, handler, token, http.MethodGet, base+"suggest/clients?q=%EF%BE%83%EF%BD%BD%EF%BE%84", nil, &clients); code != http.StatusOK {
		t.Fatalf("expected 200 for client suggestions, got %d", code)
	}
	if len(clients) != 1 || clients[0].Count != 2 {
		t.Fatalf("expected half-width query to match both spellings, got %+v", clients)
	}

	var criteria map[string]any
	if code := call(t, handler, token, http.MethodPost, base+"select/client", keyRequest{Key: clients[0].NormalizedName}, &criteria); code != http.StatusOK {
		t.Fatalf("expected 200 for select/client, got %d", code)
	}
	if criteria["client_key"] != "テスト" {
		t.Fatalf("expected client_key to be set, got %v", criteria)
	}

	var options domain.FilterOptions
	if code := call(t, handler, token, http.MethodGet, base+"options", nil, &options); code != http.StatusOK {
		t.Fatalf("expected 200 for options, got %d", code)
	}
	if len(options.YearMonths) != 1 || options.DefaultEndYearMonth != "2025/04" {
		t.Fatalf("unexpected options: %+v", options)
	}

	var status service.Status
	if code := call(t, handler, token, http.MethodDelete, base+"cache", nil, &status); code != http.StatusOK {
		t.Fatalf("expected 200 for cache delete, got %d", code)
	}
	if status.Loaded {
		t.Fatalf("expected dataset forgotten after cache delete")
	}
}

func TestHandleMasterAndContacts(t *testing.T) {
	api, fake := newTestAPIWithSheet(t)
	handler := api.Handler()
	token := login(t, handler)

	var departments []string
	if code := call(t, handler, token, http.MethodGet, "/api/v1/master/departments?company=%E3%83%86%E3%82%B9%E3%83%88", nil, &departments); code != http.StatusOK {
		t.Fatalf("expected 200 for departments, got %d", code)
	}
	if len(departments) != 1 || departments[0] != "営業部" {
		t.Fatalf("unexpected departments: %v", departments)
	}

	if code := call(t, handler, token, http.MethodGet, "/api/v1/master/departments", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 without company, got %d", code)
	}

	contact := domain.ContactInput{Company: "テスト", Department: "営業部", ContactName: "佐々木"}
	var result domain.MutationResult
	if code := call(t, handler, token, http.MethodPost, "/api/v1/master/contacts", contact, &result); code != http.StatusAccepted {
		t.Fatalf("expected 202 for new contact, got %d", code)
	}
	if !result.Accepted || result.RequestID == "" {
		t.Fatalf("expected an accepted mutation, got %+v", result)
	}
	if fake.postCount() != 1 {
		t.Fatalf("expected one write, got %d", fake.postCount())
	}
}

func TestHandleActivities(t *testing.T) {
	api, fake := newTestAPIWithSheet(t)
	handler := api.Handler()
	token := login(t, handler)

	incomplete := domain.ActivityInput{SalesRep: "山田"}
	if code := call(t, handler, token, http.MethodPost, "/api/v1/activities", incomplete, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for incomplete activity, got %d", code)
	}

	in := domain.ActivityInput{
		Datetime: "2025-04-10 10:00",
		SalesRep: "山田",
		Company:  "テスト",
		Contacts: []string{"田中"},
		Reaction: "良好",
	}
	var result domain.MutationResult
	if code := call(t, handler, token, http.MethodPost, "/api/v1/activities", in, &result); code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", code)
	}
	if !result.Accepted || result.Verified {
		t.Fatalf("expected accepted but unverified write, got %+v", result)
	}

	if code := call(t, handler, token, http.MethodDelete, "/api/v1/activities/17", nil, &result); code != http.StatusAccepted {
		t.Fatalf("expected 202 for delete, got %d", code)
	}
	if !result.Verified {
		t.Fatalf("expected delete verified when the id is absent")
	}
	if code := call(t, handler, token, http.MethodGet, "/api/v1/activities/", nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 without an id, got %d", code)
	}
	if fake.postCount() != 2 {
		t.Fatalf("expected two writes, got %d", fake.postCount())
	}
}

func TestHandleActionList(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler)

	if code := call(t, handler, token, http.MethodGet, "/api/v1/action-list", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a month, got %d", code)
	}

	var list domain.ActionListResponse
	if code := call(t, handler, token, http.MethodGet, "/api/v1/action-list?year=2025&month=4&sort=company", nil, &list); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if list.YearMonth != "2025年4月" || list.Total != 2 || list.Completed != 1 {
		t.Fatalf("unexpected action list: %+v", list)
	}

	var updated actionStatusResponse
	req := actionStatusRequest{YearMonth: "2025年4月", ContactID: "1", Status: "completed"}
	if code := call(t, handler, token, http.MethodPost, "/api/v1/action-list/status", req, &updated); code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", code)
	}
	if updated.List.Completed != 2 {
		t.Fatalf("expected local progress to reflect the change, got %+v", updated.List)
	}

	bad := actionStatusRequest{YearMonth: "2025年4月", ContactID: "1", Status: "done"}
	if code := call(t, handler, token, http.MethodPost, "/api/v1/action-list/status", bad, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", code)
	}
}

func TestHandleProposalProducts(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler)

	var products []domain.ProposalProduct
	if code := call(t, handler, token, http.MethodGet, "/api/v1/proposal-products?year_month=2025%2F04", nil, &products); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(products) != 1 || products[0].Code != "P1" {
		t.Fatalf("unexpected products: %+v", products)
	}
}
