// Package performance filters, orders and breaks down historical order
// performance by representative.
package performance

import (
	"sort"
	"strings"

	"salesanalysis/backend/internal/domain"
)

const (
	FieldOrderYearMonth = "orderYearMonth"
	FieldCustomerName   = "customerName"
	FieldCustomerRep    = "customerRep"
	FieldClientName     = "clientName"
	FieldOrderCount     = "orderCount"
	FieldSalesAmount    = "salesAmount"
)

// excludedNaviMaker is left out of navigation tallies.
const excludedNaviMaker = "9080"

type SortState struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc"`
}

// DefaultSort shows the most recent month first.
var DefaultSort = SortState{Field: FieldOrderYearMonth, Desc: true}

func ValidField(field string) bool {
	switch field {
	case FieldOrderYearMonth, FieldCustomerName, FieldCustomerRep, FieldClientName, FieldOrderCount, FieldSalesAmount:
		return true
	}
	return false
}

// Toggle flips the direction when field is already the sort field and starts
// a new field ascending.
func Toggle(current SortState, field string) SortState {
	if current.Field == field {
		return SortState{Field: field, Desc: !current.Desc}
	}
	return SortState{Field: field}
}

// Filter keeps rows for customer and rep; an empty argument matches everything.
func Filter(rows []domain.PerformanceRow, customer string, rep string) []domain.PerformanceRow {
	out := make([]domain.PerformanceRow, 0, len(rows))
	for _, row := range rows {
		if customer != "" && row.CustomerName != customer {
			continue
		}
		if rep != "" && row.CustomerRep != rep {
			continue
		}
		out = append(out, row)
	}
	return out
}

// Sort orders rows in place. Counts and amounts compare numerically, every
// other field as plain text.
func Sort(rows []domain.PerformanceRow, state SortState) {
	sort.SliceStable(rows, func(i, j int) bool {
		c := compare(rows[i], rows[j], state.Field)
		if state.Desc {
			return c > 0
		}
		return c < 0
	})
}

func compare(a domain.PerformanceRow, b domain.PerformanceRow, field string) int {
	switch field {
	case FieldOrderCount:
		return compareInt(a.OrderCount, b.OrderCount)
	case FieldSalesAmount:
		return compareInt(a.SalesAmount, b.SalesAmount)
	case FieldCustomerName:
		return strings.Compare(a.CustomerName, b.CustomerName)
	case FieldCustomerRep:
		return strings.Compare(a.CustomerRep, b.CustomerRep)
	case FieldClientName:
		return strings.Compare(a.ClientName, b.ClientName)
	default:
		return strings.Compare(a.OrderYearMonth, b.OrderYearMonth)
	}
}

func compareInt(a int64, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func Totals(rows []domain.PerformanceRow) (orders int64, amount int64) {
	for _, row := range rows {
		orders += row.OrderCount
		amount += row.SalesAmount
	}
	return orders, amount
}

// Customers returns the distinct non-empty customer names, sorted.
func Customers(rows []domain.PerformanceRow) []string {
	return distinctSorted(rows, func(row domain.PerformanceRow) string { return row.CustomerName })
}

// Reps returns the representatives serving customer, or every representative
// when customer is empty.
func Reps(rows []domain.PerformanceRow, customer string) []string {
	return distinctSorted(Filter(rows, customer, ""), func(row domain.PerformanceRow) string { return row.CustomerRep })
}

func distinctSorted(rows []domain.PerformanceRow, field func(domain.PerformanceRow) string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, row := range rows {
		v := field(row)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func IsNavi(d domain.PerformanceDetail) bool {
	return d.ProductMajor == "2" && d.ProductMiddle == "S" && d.ProductMinor == "C" && d.MakerCode != excludedNaviMaker
}

func IsDriveRecorder(d domain.PerformanceDetail) bool {
	return d.ProductMajor == "2" && d.ProductMiddle == "S" && d.ProductMinor == "Y"
}

// Breakdown tallies rep's navigation and drive recorder orders by client,
// vehicle and product, and all of rep's orders by client and vehicle.
// Available is false when no detail rows were loaded at all.
func Breakdown(details []domain.PerformanceDetail, rep string) domain.RepBreakdown {
	out := domain.RepBreakdown{
		Rep:           rep,
		Available:     len(details) > 0,
		Navi:          []domain.ProductTally{},
		DriveRecorder: []domain.ProductTally{},
		Vehicles:      []domain.VehicleTally{},
	}
	if !out.Available {
		return out
	}

	var own, navi, recorders []domain.PerformanceDetail
	for _, d := range details {
		if d.CustomerRep != rep {
			continue
		}
		own = append(own, d)
		if IsNavi(d) {
			navi = append(navi, d)
		}
		if IsDriveRecorder(d) {
			recorders = append(recorders, d)
		}
	}
	out.Navi = AggregateByProduct(navi, rep)
	out.DriveRecorder = AggregateByProduct(recorders, rep)
	out.Vehicles = AggregateByVehicle(own, rep)
	return out
}

// AggregateByProduct groups rows by client, vehicle and product code and
// counts distinct order numbers, most orders first.
func AggregateByProduct(details []domain.PerformanceDetail, rep string) []domain.ProductTally {
	groups := groupOrders(details, func(d domain.PerformanceDetail) string {
		return d.ClientName + "\x00" + d.VehicleName + "\x00" + d.ProductCode
	})
	out := make([]domain.ProductTally, 0, len(groups))
	for _, g := range groups {
		out = append(out, domain.ProductTally{
			CustomerRep: rep,
			ClientName:  g.first.ClientName,
			VehicleName: g.first.VehicleName,
			ProductCode: g.first.ProductCode,
			OrderCount:  len(g.orders),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderCount > out[j].OrderCount })
	return out
}

// AggregateByVehicle groups rows by client and vehicle and counts distinct
// order numbers, most orders first.
func AggregateByVehicle(details []domain.PerformanceDetail, rep string) []domain.VehicleTally {
	groups := groupOrders(details, func(d domain.PerformanceDetail) string {
		return d.ClientName + "\x00" + d.VehicleName
	})
	out := make([]domain.VehicleTally, 0, len(groups))
	for _, g := range groups {
		out = append(out, domain.VehicleTally{
			CustomerRep: rep,
			ClientName:  g.first.ClientName,
			VehicleName: g.first.VehicleName,
			OrderCount:  len(g.orders),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderCount > out[j].OrderCount })
	return out
}

type orderGroup struct {
	first  domain.PerformanceDetail
	orders map[string]struct{}
}

// groupOrders buckets details by key in first-seen order. Rows without an
// order number create the bucket but are not counted.
func groupOrders(details []domain.PerformanceDetail, key func(domain.PerformanceDetail) string) []*orderGroup {
	index := make(map[string]*orderGroup)
	groups := make([]*orderGroup, 0)
	for _, d := range details {
		k := key(d)
		g, ok := index[k]
		if !ok {
			g = &orderGroup{first: d, orders: make(map[string]struct{})}
			index[k] = g
			groups = append(groups, g)
		}
		if d.OrderNo != "" {
			g.orders[d.OrderNo] = struct{}{}
		}
	}
	return groups
}
