package analysis

import (
	"sort"

	"salesanalysis/backend/internal/domain"
)

// FilterOptions lists the selectable values present in the data. Branches
// follow the reference order first and then the order they appear in the
// data, restricted to abbr when it is set.
func FilterOptions(records []domain.TransactionRecord, reference domain.ReferenceData, abbr string) domain.FilterOptions {
	months := make(map[string]struct{})
	abbrs := make(map[string]struct{})
	present := make(map[string]struct{})
	dataOrder := make([]string, 0)

	for _, rec := range records {
		if rec.YearMonth != "" {
			months[rec.YearMonth] = struct{}{}
		}
		if rec.Abbr != "" {
			abbrs[rec.Abbr] = struct{}{}
		}
		if rec.Branch == "" || (abbr != "" && rec.Abbr != abbr) {
			continue
		}
		if _, ok := present[rec.Branch]; !ok {
			present[rec.Branch] = struct{}{}
			dataOrder = append(dataOrder, rec.Branch)
		}
	}

	opts := domain.FilterOptions{
		YearMonths: sortedKeys(months),
		Abbrs:      sortedKeys(abbrs),
		Branches:   make([]string, 0, len(dataOrder)),
	}
	sort.Sort(sort.Reverse(sort.StringSlice(opts.YearMonths)))
	if len(opts.YearMonths) > 0 {
		opts.DefaultEndYearMonth = opts.YearMonths[0]
	}

	placed := make(map[string]struct{}, len(dataOrder))
	for _, branch := range reference.BranchOrder {
		if _, ok := present[branch]; !ok {
			continue
		}
		if _, dup := placed[branch]; dup {
			continue
		}
		placed[branch] = struct{}{}
		opts.Branches = append(opts.Branches, branch)
	}
	for _, branch := range dataOrder {
		if _, ok := placed[branch]; ok {
			continue
		}
		opts.Branches = append(opts.Branches, branch)
	}
	return opts
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
