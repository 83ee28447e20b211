package library

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortOrder is one of the library sort options.
type SortOrder string

const (
	SortDateDesc SortOrder = "date-desc"
	SortDateAsc  SortOrder = "date-asc"
	SortTitle    SortOrder = "title"
	SortAuthor   SortOrder = "author"
)

// TypeAll disables the type filter.
const TypeAll = "all"

// SortOrders lists the supported orders.
var SortOrders = []SortOrder{SortDateDesc, SortDateAsc, SortTitle, SortAuthor}

// FilterState is what the user picked in the library controls.
type FilterState struct {
	Search string
	Type   string
	Sort   SortOrder
	// Locale drives title and author collation; English when unset.
	Locale language.Tag
}

// DefaultFilters shows everything, newest first.
func DefaultFilters() FilterState {
	return FilterState{Type: TypeAll, Sort: SortDateDesc}
}

// ApplyFilters runs search, then the type filter, then the sort, returning a
// new slice. Unknown sort orders keep the input order.
func ApplyFilters(entries []Entry, fs FilterState) []Entry {
	term := strings.ToLower(strings.TrimSpace(fs.Search))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if term != "" && !matches(e, term) {
			continue
		}
		if fs.Type != "" && fs.Type != TypeAll && e.Type != fs.Type {
			continue
		}
		out = append(out, e)
	}

	switch fs.Sort {
	case SortDateDesc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	case SortDateAsc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	case SortTitle:
		col := newCollator(fs.Locale)
		sort.SliceStable(out, func(i, j int) bool { return col.CompareString(out[i].Title, out[j].Title) < 0 })
	case SortAuthor:
		col := newCollator(fs.Locale)
		sort.SliceStable(out, func(i, j int) bool { return col.CompareString(out[i].Author, out[j].Author) < 0 })
	}
	return out
}

func matches(e Entry, term string) bool {
	return strings.Contains(strings.ToLower(e.Title), term) ||
		strings.Contains(strings.ToLower(e.Author), term) ||
		strings.Contains(strings.ToLower(e.Description), term)
}

// newCollator builds a collator per call; collators are not safe for
// concurrent use.
func newCollator(tag language.Tag) *collate.Collator {
	if tag == language.Und {
		tag = language.English
	}
	return collate.New(tag)
}
