package analysis

import (
	"sort"

	"salesanalysis/backend/internal/domain"
	"salesanalysis/backend/internal/textnorm"
)

// OtherProductKey buckets records without a product code.
const OtherProductKey = "その他"

// AggregateByRep groups records by representative family name. Display
// fields come from the first record seen for each bucket; buckets keep
// first-seen order.
func AggregateByRep(records []domain.TransactionRecord, ref domain.ReferenceData) []domain.RepRow {
	index := make(map[string]int)
	rows := make([]domain.RepRow, 0)

	for _, rec := range records {
		key := textnorm.ExtractFamilyName(rec.RepName)
		i, ok := index[key]
		if !ok {
			i = len(rows)
			index[key] = i
			rows = append(rows, domain.RepRow{
				RepLastName:  key,
				RepFullName:  rec.RepName,
				Abbr:         rec.Abbr,
				Branch:       rec.Branch,
				ClientName:   rec.ClientName,
				CustomerName: rec.CustomerName,
				Phone:        ref.Phone(rec.Branch),
			})
		}
		row := &rows[i]
		row.TotalAmount += rec.UnitPrice
		row.Items = append(row.Items, rec)
		row.ItemCount++
		if rec.IsSummary {
			row.HasSummary = true
		}
	}
	return rows
}

// AggregateByClient groups one representative's records by normalized
// client name, ordered by amount descending.
func AggregateByClient(records []domain.TransactionRecord) []domain.ClientRow {
	index := make(map[string]int)
	rows := make([]domain.ClientRow, 0)

	for _, rec := range records {
		key := textnorm.NormalizeClientName(rec.ClientName)
		i, ok := index[key]
		if !ok {
			i = len(rows)
			index[key] = i
			rows = append(rows, domain.ClientRow{
				ClientName:       rec.ClientName,
				ClientNormalized: key,
			})
		}
		row := &rows[i]
		row.TotalAmount += rec.UnitPrice
		row.Items = append(row.Items, rec)
		row.ItemCount++
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].TotalAmount > rows[j].TotalAmount })
	return rows
}

// AggregateByProduct groups one client's records by product code, ordered by
// amount descending.
func AggregateByProduct(records []domain.TransactionRecord) []domain.ProductRow {
	index := make(map[string]int)
	rows := make([]domain.ProductRow, 0)

	for _, rec := range records {
		key := rec.ProductCode
		if key == "" {
			key = OtherProductKey
		}
		i, ok := index[key]
		if !ok {
			i = len(rows)
			index[key] = i
			rows = append(rows, domain.ProductRow{
				Key:         key,
				ProductCode: rec.ProductCode,
				ProductName: textnorm.ToFullWidthKana(rec.ProductName),
			})
		}
		row := &rows[i]
		row.TotalQuantity += rec.Quantity
		row.TotalAmount += rec.UnitPrice
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].TotalAmount > rows[j].TotalAmount })
	return rows
}

func SumAmount(records []domain.TransactionRecord) int64 {
	var total int64
	for _, rec := range records {
		total += rec.UnitPrice
	}
	return total
}

// SummaryRepNames lists the distinct full names in a bucket that still carry
// provisional summary rows.
func SummaryRepNames(row domain.RepRow) []string {
	seen := make(map[string]struct{})
	names := make([]string, 0, 1)
	for _, rec := range row.Items {
		if !rec.IsSummary {
			continue
		}
		if _, ok := seen[rec.RepName]; ok {
			continue
		}
		seen[rec.RepName] = struct{}{}
		names = append(names, rec.RepName)
	}
	return names
}
