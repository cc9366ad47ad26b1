package analysis

import (
	"cmp"
	"sort"

	"golang.org/x/text/cases"

	"salesanalysis/backend/internal/domain"
)

const (
	SortTotalAmount = "totalAmount"
	SortRepLastName = "repLastName"
	SortAbbr        = "abbr"
	SortBranch      = "branch"
	SortClientName  = "clientName"
	SortItemCount   = "itemCount"
)

type SortState struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc"`
}

var DefaultSort = SortState{Field: SortTotalAmount, Desc: true}

func validSortField(field string) bool {
	switch field {
	case SortTotalAmount, SortRepLastName, SortAbbr, SortBranch, SortClientName, SortItemCount:
		return true
	}
	return false
}

// Toggle flips the direction when field repeats and otherwise starts the new
// field descending.
func (s SortState) Toggle(field string) SortState {
	if s.Field == field {
		return SortState{Field: field, Desc: !s.Desc}
	}
	return SortState{Field: field, Desc: true}
}

// SortReps orders Tier 1 rows in place. Ties keep their current order.
func SortReps(rows []domain.RepRow, state SortState) {
	sort.SliceStable(rows, func(i, j int) bool {
		c := compareRep(rows[i], rows[j], state.Field)
		if state.Desc {
			return c > 0
		}
		return c < 0
	})
}

func compareRep(a domain.RepRow, b domain.RepRow, field string) int {
	switch field {
	case SortTotalAmount:
		return cmp.Compare(a.TotalAmount, b.TotalAmount)
	case SortItemCount:
		return cmp.Compare(a.ItemCount, b.ItemCount)
	case SortRepLastName:
		return compareFold(a.RepLastName, b.RepLastName)
	case SortAbbr:
		return compareFold(a.Abbr, b.Abbr)
	case SortBranch:
		return compareFold(a.Branch, b.Branch)
	case SortClientName:
		return compareFold(a.ClientName, b.ClientName)
	}
	return 0
}

func compareFold(a string, b string) int {
	return cmp.Compare(fold(a), fold(b))
}

// fold builds a fresh Caser per call; cases.Caser keeps state and is not
// safe for concurrent use.
func fold(s string) string {
	return cases.Fold().String(s)
}
