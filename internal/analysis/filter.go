package analysis

import (
	"salesanalysis/backend/internal/domain"
	"salesanalysis/backend/internal/textnorm"
)

// Criteria are AND-combined; zero values impose no restriction.
type Criteria struct {
	StartYearMonth string `json:"start_year_month"`
	EndYearMonth   string `json:"end_year_month"`
	Abbr           string `json:"abbr"`
	Branch         string `json:"branch"`
	HQOnly         bool   `json:"hq_only"`
	// ClientKey is a normalized client name chosen from the suggestion index.
	ClientKey string `json:"client_key"`
	// RepKey is a representative family name chosen from the suggestion index.
	RepKey string `json:"rep_key"`
}

func (c Criteria) IsEmpty() bool {
	return c == Criteria{}
}

// Filter returns the records matching every criterion, preserving order.
// Year-month keys are zero-padded "YYYY/MM", so string comparison orders them.
func Filter(records []domain.TransactionRecord, c Criteria) []domain.TransactionRecord {
	if c.IsEmpty() {
		out := make([]domain.TransactionRecord, len(records))
		copy(out, records)
		return out
	}

	hasRange := c.StartYearMonth != "" || c.EndYearMonth != ""
	out := make([]domain.TransactionRecord, 0, len(records))
	for _, rec := range records {
		if hasRange {
			if rec.YearMonth == "" {
				continue
			}
			if c.StartYearMonth != "" && rec.YearMonth < c.StartYearMonth {
				continue
			}
			if c.EndYearMonth != "" && rec.YearMonth > c.EndYearMonth {
				continue
			}
		}
		if c.Abbr != "" && rec.Abbr != c.Abbr {
			continue
		}
		if c.Branch != "" && rec.Branch != c.Branch {
			continue
		}
		if c.HQOnly && !rec.HQ {
			continue
		}
		if c.ClientKey != "" && textnorm.NormalizeClientName(rec.ClientName) != c.ClientKey {
			continue
		}
		if c.RepKey != "" && textnorm.ExtractFamilyName(rec.RepName) != c.RepKey {
			continue
		}
		out = append(out, rec)
	}
	return out
}
