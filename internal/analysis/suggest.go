package analysis

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"salesanalysis/backend/internal/domain"
	"salesanalysis/backend/internal/textnorm"
)

const (
	MaxSuggestions = 10
	// UnknownBranch labels records that carry no branch.
	UnknownBranch = "不明"
)

func lower(s string) string {
	return cases.Lower(language.Und).String(s)
}

// SuggestClients groups matching records by normalized client name. A record
// matches when its raw name contains the query case-insensitively, or when its
// normalized name contains the normalized query. A query that normalizes to
// nothing, such as a bare company suffix, matches every client.
func SuggestClients(query string, records []domain.TransactionRecord) []domain.ClientSuggestion {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	lowerQuery := lower(query)
	normalizedQuery := textnorm.NormalizeClientName(query)

	index := make(map[string]int)
	customers := make([]map[string]struct{}, 0)
	out := make([]domain.ClientSuggestion, 0)

	for _, rec := range records {
		if rec.ClientName == "" {
			continue
		}
		normalized := textnorm.NormalizeClientName(rec.ClientName)
		rawHit := strings.Contains(lower(rec.ClientName), lowerQuery)
		normHit := strings.Contains(normalized, normalizedQuery)
		if !rawHit && !normHit {
			continue
		}

		i, ok := index[normalized]
		if !ok {
			i = len(out)
			index[normalized] = i
			out = append(out, domain.ClientSuggestion{
				ClientName:     rec.ClientName,
				NormalizedName: normalized,
				Customers:      []string{},
			})
			customers = append(customers, make(map[string]struct{}))
		}
		out[i].Count++
		if rec.CustomerName != "" {
			if _, seen := customers[i][rec.CustomerName]; !seen {
				customers[i][rec.CustomerName] = struct{}{}
				out[i].Customers = append(out[i].Customers, rec.CustomerName)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > MaxSuggestions {
		out = out[:MaxSuggestions]
	}
	return out
}

// SuggestReps groups matching records by family name. When abbr is set only
// that abbreviation's records are considered.
func SuggestReps(query string, records []domain.TransactionRecord, abbr string) []domain.RepSuggestion {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	lowerQuery := lower(query)

	index := make(map[string]int)
	branches := make([]map[string]struct{}, 0)
	out := make([]domain.RepSuggestion, 0)

	for _, rec := range records {
		if rec.RepName == "" {
			continue
		}
		if abbr != "" && rec.Abbr != abbr {
			continue
		}
		family := textnorm.ExtractFamilyName(rec.RepName)
		if !strings.Contains(lower(rec.RepName), lowerQuery) && !strings.Contains(lower(family), lowerQuery) {
			continue
		}

		i, ok := index[family]
		if !ok {
			i = len(out)
			index[family] = i
			out = append(out, domain.RepSuggestion{
				RepName:     rec.RepName,
				RepLastName: family,
				Branches:    []string{},
			})
			branches = append(branches, make(map[string]struct{}))
		}
		out[i].Count++
		branch := rec.Branch
		if branch == "" {
			branch = UnknownBranch
		}
		if _, seen := branches[i][branch]; !seen {
			branches[i][branch] = struct{}{}
			out[i].Branches = append(out[i].Branches, branch)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > MaxSuggestions {
		out = out[:MaxSuggestions]
	}
	return out
}
