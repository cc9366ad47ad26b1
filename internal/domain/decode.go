package domain

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Spreadsheet cells arrive loosely typed: numbers as strings, flags as "TRUE"
// or "○", blanks as null. Records are coerced here so aggregation can assume
// every field is present and typed.

type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	// numeric or boolean cell rendered as text
	*s = looseString(string(data))
	return nil
}

type looseInt int64

func (n *looseInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		raw = v
	}
	*n = looseInt(parseAmount(raw))
	return nil
}

func parseAmount(raw string) int64 {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.NewReplacer(",", "", "¥", "", "￥", "", " ", "").Replace(cleaned)
	if cleaned == "" {
		return 0
	}
	if v, err := strconv.ParseInt(cleaned, 10, 64); err == nil {
		return v
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int64(math.Round(f))
}

type looseBool bool

func (b *looseBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*b = false
	case bytes.Equal(data, []byte("true")):
		*b = true
	case bytes.Equal(data, []byte("false")):
		*b = false
	case data[0] == '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*b = looseBool(truthy(v))
	default:
		*b = looseBool(parseAmount(string(data)) != 0)
	}
	return nil
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "y", "○", "◯", "本社":
		return true
	}
	return false
}

type wireRecord struct {
	YearMonth    looseString `json:"registYearMonth"`
	Abbr         looseString `json:"abbr"`
	Branch       looseString `json:"branch"`
	RepName      looseString `json:"repName"`
	ClientName   looseString `json:"clientName"`
	CustomerName looseString `json:"customerName"`
	ProductCode  looseString `json:"productCode"`
	ProductName  looseString `json:"productName"`
	Quantity     looseInt    `json:"quantity"`
	UnitPrice    looseInt    `json:"unitPrice"`
	HQ           looseBool   `json:"hqFlag"`
	IsSummary    looseBool   `json:"isSummary"`
}

func (r *TransactionRecord) UnmarshalJSON(data []byte) error {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = TransactionRecord{
		YearMonth:    normalizeYearMonth(string(w.YearMonth)),
		Abbr:         strings.TrimSpace(string(w.Abbr)),
		Branch:       strings.TrimSpace(string(w.Branch)),
		RepName:      strings.TrimSpace(string(w.RepName)),
		ClientName:   string(w.ClientName),
		CustomerName: string(w.CustomerName),
		ProductCode:  strings.TrimSpace(string(w.ProductCode)),
		ProductName:  string(w.ProductName),
		Quantity:     int64(w.Quantity),
		UnitPrice:    int64(w.UnitPrice),
		HQ:           bool(w.HQ),
		IsSummary:    bool(w.IsSummary),
	}
	return nil
}

// normalizeYearMonth zero-pads "2025/9" and "2025-9" to "2025/09" so that
// lexical comparison orders months correctly.
func normalizeYearMonth(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	sep := "/"
	if !strings.Contains(raw, sep) && strings.Contains(raw, "-") {
		sep = "-"
	}
	parts := strings.Split(raw, sep)
	if len(parts) < 2 {
		return raw
	}
	year, month := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if len(year) != 4 {
		return raw
	}
	if m, err := strconv.Atoi(month); err == nil && m >= 1 && m <= 12 {
		return year + "/" + strconv.Itoa(100 + m)[1:]
	}
	return raw
}

// UnmarshalJSON accepts both {phones, branchOrder} and the legacy flat
// branch→phone map.
func (r *ReferenceData) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if rawPhones, ok := fields["phones"]; ok {
		var phones map[string]string
		if err := json.Unmarshal(rawPhones, &phones); err != nil {
			return err
		}
		var order []string
		if rawOrder, ok := fields["branchOrder"]; ok && !bytes.Equal(bytes.TrimSpace(rawOrder), []byte("null")) {
			if err := json.Unmarshal(rawOrder, &order); err != nil {
				return err
			}
		}
		*r = ReferenceData{Phones: phones, BranchOrder: order}
		return nil
	}

	phones := make(map[string]string, len(fields))
	for branch, raw := range fields {
		var phone looseString
		if err := json.Unmarshal(raw, &phone); err != nil {
			return err
		}
		phones[branch] = string(phone)
	}
	*r = ReferenceData{Phones: phones}
	return nil
}

// Row ids come from spreadsheet cells and may be numeric.
func (a *ActionItem) UnmarshalJSON(data []byte) error {
	type plain ActionItem
	var w struct {
		plain
		ID looseString `json:"id"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*a = ActionItem(w.plain)
	a.ID = string(w.ID)
	return nil
}

func (a *Activity) UnmarshalJSON(data []byte) error {
	type plain Activity
	var w struct {
		plain
		ID looseString `json:"id"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*a = Activity(w.plain)
	a.ID = string(w.ID)
	return nil
}

func (r *PerformanceRow) UnmarshalJSON(data []byte) error {
	var w struct {
		OrderYearMonth looseString `json:"orderYearMonth"`
		CustomerName   looseString `json:"customerName"`
		CustomerRep    looseString `json:"customerRep"`
		ClientName     looseString `json:"clientName"`
		OrderCount     looseInt    `json:"orderCount"`
		SalesAmount    looseInt    `json:"salesAmount"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = PerformanceRow{
		OrderYearMonth: normalizeYearMonth(string(w.OrderYearMonth)),
		CustomerName:   strings.TrimSpace(string(w.CustomerName)),
		CustomerRep:    strings.TrimSpace(string(w.CustomerRep)),
		ClientName:     string(w.ClientName),
		OrderCount:     int64(w.OrderCount),
		SalesAmount:    int64(w.SalesAmount),
	}
	return nil
}

// Product classification codes are numeric in some rows and text in others.
func (d *PerformanceDetail) UnmarshalJSON(data []byte) error {
	var w struct {
		CustomerRep   looseString `json:"customerRep"`
		ClientName    looseString `json:"clientName"`
		VehicleName   looseString `json:"vehicleName"`
		ProductCode   looseString `json:"productCode"`
		ProductMajor  looseString `json:"productMajor"`
		ProductMiddle looseString `json:"productMiddle"`
		ProductMinor  looseString `json:"productMinor"`
		MakerCode     looseString `json:"makerCode"`
		OrderNo       looseString `json:"orderNo"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*d = PerformanceDetail{
		CustomerRep:   strings.TrimSpace(string(w.CustomerRep)),
		ClientName:    string(w.ClientName),
		VehicleName:   string(w.VehicleName),
		ProductCode:   strings.TrimSpace(string(w.ProductCode)),
		ProductMajor:  strings.TrimSpace(string(w.ProductMajor)),
		ProductMiddle: strings.TrimSpace(string(w.ProductMiddle)),
		ProductMinor:  strings.TrimSpace(string(w.ProductMinor)),
		MakerCode:     strings.TrimSpace(string(w.MakerCode)),
		OrderNo:       strings.TrimSpace(string(w.OrderNo)),
	}
	return nil
}

// UnmarshalJSON reads the {company: target} object the sheet returns while
// keeping the key order. A null payload means no goals for the month.
func (g *Goals) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*g = Goals{}
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("goals: expected object, got %v", tok)
	}
	out := Goals{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		company, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("goals: unexpected key %v", keyTok)
		}
		var target looseInt
		if err := dec.Decode(&target); err != nil {
			return err
		}
		out = append(out, Goal{Company: company, Target: int64(target)})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*g = out
	return nil
}
