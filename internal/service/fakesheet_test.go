package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"salesanalysis/backend/internal/cache"
	"salesanalysis/backend/internal/domain"
	"salesanalysis/backend/internal/loader"
	"salesanalysis/backend/internal/sheetapi"
	"salesanalysis/backend/internal/store"
	"salesanalysis/backend/internal/store/memory"
)

// fakeSheet emulates the spreadsheet web app: GET ?action=... for reads and
// text/plain JSON POST bodies for writes.
type fakeSheet struct {
	mu sync.Mutex

	order      []domain.TransactionRecord
	estimate   []domain.TransactionRecord
	details    map[string][]domain.TransactionRecord
	phones     map[string]any
	modified   time.Time
	master     domain.MasterData
	activities []map[string]any
	actions    []domain.ActionItem
	products   []domain.ProposalProduct
	perf       []domain.PerformanceRow
	perfLines  []domain.PerformanceDetail
	goals      map[string]string

	failOrder   bool
	failDetails bool
	dropWrites  bool
	block       chan struct{}
	entered     chan struct{}
	detailBlock chan struct{}
	detailEnter chan struct{}
	detailCalls int
	masterCalls int
	perfCalls   int
	failPerf    bool
	failGoals   bool
	posts       []map[string]any
	nextID      int
}

func newFakeSheet() *fakeSheet {
	return &fakeSheet{
		details:  map[string][]domain.TransactionRecord{},
		goals:    map[string]string{},
		phones:   map[string]any{"phones": map[string]string{"東京": "03-1111-1111"}, "branchOrder": []string{"東京", "大阪"}},
		modified: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		nextID:   100,
	}
}

func (f *fakeSheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		f.handlePost(w, r)
		return
	}

	q := r.URL.Query()
	switch q.Get("action") {
	case sheetapi.ActionOrderAnalysisData:
		f.mu.Lock()
		block, entered, fail := f.block, f.entered, f.failOrder
		f.mu.Unlock()
		if entered != nil {
			select {
			case entered <- struct{}{}:
			default:
			}
		}
		if block != nil {
			<-block
		}
		if fail {
			reply(w, map[string]any{"success": false, "error": "シートが見つかりません"})
			return
		}
		offset, _ := strconv.Atoi(q.Get("offset"))
		limit, _ := strconv.Atoi(q.Get("limit"))
		f.mu.Lock()
		end := offset + limit
		if end > len(f.order) {
			end = len(f.order)
		}
		chunk := []domain.TransactionRecord{}
		if offset < end {
			chunk = append(chunk, f.order[offset:end]...)
		}
		total := len(f.order)
		f.mu.Unlock()
		reply(w, map[string]any{"success": true, "data": chunk, "total": total})
	case sheetapi.ActionSalesAnalysisData:
		f.mu.Lock()
		data := f.estimate
		f.mu.Unlock()
		reply(w, map[string]any{"success": true, "data": data})
	case sheetapi.ActionOrderDetailsByRep:
		f.mu.Lock()
		f.detailCalls++
		data, fail := f.details[q.Get("repName")], f.failDetails
		block, entered := f.detailBlock, f.detailEnter
		f.mu.Unlock()
		if entered != nil {
			entered <- struct{}{}
		}
		if block != nil {
			<-block
		}
		if fail {
			reply(w, map[string]any{"success": false, "error": "詳細データの取得に失敗しました"})
			return
		}
		reply(w, map[string]any{"success": true, "data": data})
	case sheetapi.ActionCustomerPhones:
		reply(w, map[string]any{"success": true, "data": f.phones})
	case sheetapi.ActionSheetLastModified:
		f.mu.Lock()
		modified := f.modified
		f.mu.Unlock()
		reply(w, map[string]any{"success": true, "data": map[string]any{"lastModified": modified.Format(time.RFC3339)}})
	case sheetapi.ActionAllMasterData:
		f.mu.Lock()
		f.masterCalls++
		data := f.master
		f.mu.Unlock()
		reply(w, map[string]any{"success": true, "data": data})
	case sheetapi.ActionActivities:
		f.mu.Lock()
		data := append([]map[string]any(nil), f.activities...)
		f.mu.Unlock()
		reply(w, map[string]any{"success": true, "data": data})
	case sheetapi.ActionActionList:
		f.mu.Lock()
		data := append([]domain.ActionItem(nil), f.actions...)
		f.mu.Unlock()
		reply(w, map[string]any{"success": true, "data": data})
	case sheetapi.ActionProposalProducts:
		reply(w, map[string]any{"success": true, "data": f.products})
	case sheetapi.ActionPerformanceData:
		f.mu.Lock()
		f.perfCalls++
		data, fail := f.perf, f.failPerf
		f.mu.Unlock()
		if fail {
			reply(w, map[string]any{"success": false, "error": "実績シートが見つかりません"})
			return
		}
		reply(w, map[string]any{"success": true, "data": data})
	case sheetapi.ActionPerformanceRawData:
		f.mu.Lock()
		data := f.perfLines
		f.mu.Unlock()
		reply(w, map[string]any{"success": true, "data": data})
	case sheetapi.ActionGoals:
		f.mu.Lock()
		raw, fail := f.goals[q.Get("yearMonth")], f.failGoals
		f.mu.Unlock()
		if fail {
			reply(w, map[string]any{"success": false, "error": "目標シートが見つかりません"})
			return
		}
		if raw == "" {
			raw = "{}"
		}
		reply(w, map[string]any{"success": true, "data": json.RawMessage(raw)})
	default:
		reply(w, map[string]any{"success": false, "error": "unknown action"})
	}
}

func (f *fakeSheet) handlePost(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, body)
	if f.dropWrites {
		return
	}

	switch body["action"] {
	case sheetapi.ActionAddActivity:
		f.nextID++
		body["id"] = f.nextID
		f.activities = append(f.activities, body)
	case sheetapi.ActionUpdateActivity:
		for i, a := range f.activities {
			if idString(a["id"]) == idString(body["id"]) {
				body["id"] = a["id"]
				f.activities[i] = body
			}
		}
	case sheetapi.ActionDeleteActivity:
		kept := f.activities[:0]
		for _, a := range f.activities {
			if idString(a["id"]) != idString(body["id"]) {
				kept = append(kept, a)
			}
		}
		f.activities = kept
	case sheetapi.ActionUpdateActionStatus:
		for i := range f.actions {
			if f.actions[i].ID == body["contactId"] && f.actions[i].YearMonth == body["yearMonth"] {
				f.actions[i].Status, _ = body["status"].(string)
			}
		}
	}
}

func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatInt(int64(id), 10)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	case uint64:
		return strconv.FormatUint(id, 10)
	}
	return ""
}

func (f *fakeSheet) count(counter *int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *counter
}

func (f *fakeSheet) postCount(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.posts {
		if p["action"] == action {
			n++
		}
	}
	return n
}

func reply(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

type testEnv struct {
	svc  *Service
	fake *fakeSheet
	// large outlives every service built by newService; each service gets
	// its own small tier, as a restarted process would.
	large      *memory.Store
	smallQuota int
	url        string
	http       *http.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake := newFakeSheet()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	env := &testEnv{
		fake:  fake,
		large: memory.New(0),
		url:   server.URL,
		http:  server.Client(),
	}
	env.svc = env.newService(t)
	return env
}

// newService builds another service over the same durable store and fake
// backend, standing in for a restarted process.
func (e *testEnv) newService(t *testing.T) *Service {
	t.Helper()
	client := sheetapi.New(e.url, e.http, nil)
	var large store.Repository
	if e.large != nil {
		large = e.large
	}
	cacheStore := cache.NewStore(memory.New(e.smallQuota), large, nil)
	l, err := loader.New(client, cacheStore, 3, nil)
	require.NoError(t, err)
	return New(l, client, cacheStore, cache.NewMemoryMasterCache(nil), CacheTTL{Master: time.Hour}, nil)
}

func salesRecord(rep string, client string, code string, amount int64) domain.TransactionRecord {
	return domain.TransactionRecord{
		YearMonth:    "2025/04",
		Abbr:         "TK",
		Branch:       "東京",
		RepName:      rep,
		ClientName:   client,
		CustomerName: client + " 本店",
		ProductCode:  code,
		ProductName:  "商品" + code,
		Quantity:     1,
		UnitPrice:    amount,
	}
}

func seedOrders(f *fakeSheet) {
	summary := salesRecord("佐藤 花子", "サンプル", "", 9000)
	summary.IsSummary = true
	suzuki := salesRecord("鈴木 一郎", "ABC", "P2", 700)
	suzuki.Abbr = "OS"
	suzuki.Branch = "大阪"

	f.order = []domain.TransactionRecord{
		salesRecord("山田 太郎", "株式会社テスト", "P1", 1000),
		salesRecord("山田 太郎", "(株)テスト", "P2", 500),
		salesRecord("佐藤 花子", "サンプル", "P1", 3000),
		summary,
		suzuki,
	}
	f.details["佐藤 花子"] = []domain.TransactionRecord{
		salesRecord("佐藤 花子", "サンプル", "P9", 4000),
		salesRecord("佐藤 花子", "別会社", "P9", 5000),
	}
}

func mustLoad(t *testing.T, svc *Service, mode domain.Mode) Status {
	t.Helper()
	status, err := svc.Load(context.Background(), mode)
	require.NoError(t, err)
	return status
}
