package domain

import (
	"fmt"
	"time"
)

type Mode string

const (
	ModeEstimate Mode = "estimate"
	ModeOrder    Mode = "order"
)

var Modes = []Mode{ModeEstimate, ModeOrder}

func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case ModeEstimate, ModeOrder:
		return Mode(raw), nil
	}
	return "", fmt.Errorf("unknown data mode %q", raw)
}

// Chunked reports whether the mode's dataset is large enough to be fetched in pages.
func (m Mode) Chunked() bool {
	return m == ModeOrder
}

// TransactionRecord is one row of raw sales data.
type TransactionRecord struct {
	YearMonth    string `json:"registYearMonth"`
	Abbr         string `json:"abbr"`
	Branch       string `json:"branch"`
	RepName      string `json:"repName"`
	ClientName   string `json:"clientName"`
	CustomerName string `json:"customerName"`
	ProductCode  string `json:"productCode"`
	ProductName  string `json:"productName"`
	Quantity     int64  `json:"quantity"`
	UnitPrice    int64  `json:"unitPrice"`
	HQ           bool   `json:"hqFlag"`
	IsSummary    bool   `json:"isSummary"`
}

type Dataset struct {
	Mode     Mode                `json:"mode"`
	Records  []TransactionRecord `json:"records"`
	LoadedAt time.Time           `json:"loaded_at"`
}

// ReferenceData maps branch names to phone numbers and carries the canonical branch order.
type ReferenceData struct {
	Phones      map[string]string `json:"phones"`
	BranchOrder []string          `json:"branchOrder"`
}

func (r ReferenceData) Phone(branch string) string {
	if r.Phones == nil {
		return ""
	}
	return r.Phones[branch]
}

type CacheEntry struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	WrittenAt time.Time `json:"written_at"`
}

type RepRow struct {
	RepLastName  string              `json:"rep_last_name"`
	RepFullName  string              `json:"rep_full_name"`
	Abbr         string              `json:"abbr"`
	Branch       string              `json:"branch"`
	ClientName   string              `json:"client_name"`
	CustomerName string              `json:"customer_name"`
	Phone        string              `json:"phone,omitempty"`
	TotalAmount  int64               `json:"total_amount"`
	Items        []TransactionRecord `json:"-"`
	ItemCount    int                 `json:"item_count"`
	HasSummary   bool                `json:"has_summary"`
}

type ClientRow struct {
	ClientName       string              `json:"client_name"`
	ClientNormalized string              `json:"client_normalized"`
	TotalAmount      int64               `json:"total_amount"`
	Items            []TransactionRecord `json:"-"`
	ItemCount        int                 `json:"item_count"`
}

type ProductRow struct {
	Key           string `json:"key"`
	ProductCode   string `json:"product_code"`
	ProductName   string `json:"product_name"`
	TotalQuantity int64  `json:"total_quantity"`
	TotalAmount   int64  `json:"total_amount"`
}

type ClientSuggestion struct {
	ClientName     string   `json:"client_name"`
	NormalizedName string   `json:"normalized_name"`
	Customers      []string `json:"customers"`
	Count          int      `json:"count"`
}

type RepSuggestion struct {
	RepName     string   `json:"rep_name"`
	RepLastName string   `json:"rep_last_name"`
	Branches    []string `json:"branches"`
	Count       int      `json:"count"`
}

type FilterOptions struct {
	YearMonths []string `json:"year_months"`
	Abbrs      []string `json:"abbrs"`
	Branches   []string `json:"branches"`
	// DefaultEndYearMonth is the most recent year-month present in the data.
	DefaultEndYearMonth string `json:"default_end_year_month,omitempty"`
}

type LoadProgress struct {
	Loaded   int     `json:"loaded"`
	Total    int     `json:"total"`
	Fraction float64 `json:"fraction"`
}

type Staleness struct {
	Stale          bool      `json:"stale"`
	CachedAt       time.Time `json:"cached_at"`
	ServerModified time.Time `json:"server_modified"`
	Notice         string    `json:"notice,omitempty"`
}

// MutationResult is the outcome of a fire-and-forget write. Accepted is always
// true once the request left the process; Verified is set only after a re-fetch.
type MutationResult struct {
	Accepted  bool   `json:"accepted"`
	RequestID string `json:"request_id"`
	Verified  bool   `json:"verified"`
}

type MasterData struct {
	Customers   []string            `json:"customers"`
	Departments map[string][]string `json:"departments"`
	Contacts    map[string][]string `json:"contacts"`
}

func ContactKey(company string, department string) string {
	return company + "_" + department
}

type Activity struct {
	ID        string   `json:"id"`
	Datetime  string   `json:"datetime"`
	Type      string   `json:"type"`
	SalesRep  string   `json:"salesRep"`
	Company   string   `json:"company"`
	Dept      string   `json:"department"`
	Contact   string   `json:"contact,omitempty"`
	Contacts  []string `json:"contacts"`
	Reaction  string   `json:"reaction"`
	Met       string   `json:"met"`
	Note      string   `json:"note"`
	Proposals []string `json:"proposals"`
}

type ActivityInput struct {
	Datetime  string   `json:"datetime"`
	Type      string   `json:"type"`
	SalesRep  string   `json:"sales_rep"`
	Company   string   `json:"company"`
	Dept      string   `json:"department"`
	Contacts  []string `json:"contacts"`
	Reaction  string   `json:"reaction"`
	Met       string   `json:"met"`
	Note      string   `json:"note"`
	Proposals []string `json:"proposals"`
}

type ContactInput struct {
	Company     string `json:"company"`
	Department  string `json:"department"`
	ContactName string `json:"contact_name"`
}

type ActionItem struct {
	ID            string `json:"id"`
	YearMonth     string `json:"yearMonth"`
	SalesRep      string `json:"salesRep"`
	Company       string `json:"company"`
	Department    string `json:"department"`
	ContactName   string `json:"contactName"`
	Status        string `json:"status"`
	LastVisitDate string `json:"lastVisitDate"`
	DaysSince     *int   `json:"daysSince"`
	VisitStatus   string `json:"visitStatus"`
}

type ActionListResponse struct {
	YearMonth string       `json:"year_month"`
	Items     []ActionItem `json:"items"`
	SalesReps []string     `json:"sales_reps"`
	Completed int          `json:"completed"`
	Total     int          `json:"total"`
}

type ProposalProduct struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type LoginRequest struct {
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Subject string `json:"subject"`
}

// PerformanceRow is one monthly line of the historical performance sheet.
type PerformanceRow struct {
	OrderYearMonth string `json:"orderYearMonth"`
	CustomerName   string `json:"customerName"`
	CustomerRep    string `json:"customerRep"`
	ClientName     string `json:"clientName"`
	OrderCount     int64  `json:"orderCount"`
	SalesAmount    int64  `json:"salesAmount"`
}

// PerformanceDetail is one order line behind the performance sheet, used for
// the per-representative breakdown.
type PerformanceDetail struct {
	CustomerRep   string `json:"customerRep"`
	ClientName    string `json:"clientName"`
	VehicleName   string `json:"vehicleName"`
	ProductCode   string `json:"productCode"`
	ProductMajor  string `json:"productMajor"`
	ProductMiddle string `json:"productMiddle"`
	ProductMinor  string `json:"productMinor"`
	MakerCode     string `json:"makerCode"`
	OrderNo       string `json:"orderNo"`
}

type ProductTally struct {
	CustomerRep string `json:"customer_rep"`
	ClientName  string `json:"client_name"`
	VehicleName string `json:"vehicle_name"`
	ProductCode string `json:"product_code"`
	OrderCount  int    `json:"order_count"`
}

type VehicleTally struct {
	CustomerRep string `json:"customer_rep"`
	ClientName  string `json:"client_name"`
	VehicleName string `json:"vehicle_name"`
	OrderCount  int    `json:"order_count"`
}

type RepBreakdown struct {
	Rep           string         `json:"rep"`
	Available     bool           `json:"available"`
	Navi          []ProductTally `json:"navi"`
	DriveRecorder []ProductTally `json:"drive_recorder"`
	Vehicles      []VehicleTally `json:"vehicles"`
}

// Goal is a company's visit target for one month.
type Goal struct {
	Company string `json:"company"`
	Target  int64  `json:"target"`
}

// Goals keeps the order the sheet lists companies in.
type Goals []Goal

type CompanyStat struct {
	Company     string `json:"company"`
	Target      int64  `json:"target"`
	Count       int64  `json:"count"`
	Progress    int64  `json:"progress_percent"`
	Remaining   int64  `json:"remaining"`
	TotalAttack int64  `json:"total_attack"`
	Hit         int64  `json:"hit"`
	Triangle    int64  `json:"triangle"`
	Miss        int64  `json:"miss"`
	HitRate     int64  `json:"hit_rate_percent"`
}

type Visit struct {
	Company    string `json:"company"`
	Department string `json:"department"`
	Contact    string `json:"contact"`
	Datetime   string `json:"datetime"`
	Met        string `json:"met"`
	SalesRep   string `json:"sales_rep"`
}

type DashboardSummary struct {
	YearMonth string        `json:"year_month"`
	Companies []CompanyStat `json:"companies"`
	Total     CompanyStat   `json:"total"`
	Visits    []Visit       `json:"visits"`
}
