package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Scope is the reporting window of a reconciliation run: an inclusive range of
// business dates and an optional list of store codes. Records without a store
// are always in scope.
type Scope struct {
	Start      time.Time
	End        time.Time
	StoreCodes []string
}

// NewScope parses YYYY-MM-DD dates and normalises the store list.
func NewScope(start, end string, stores []string) (Scope, error) {
	s, err := time.Parse(DateLayout, strings.TrimSpace(start))
	if err != nil {
		return Scope{}, fmt.Errorf("start date %q: %w", start, err)
	}
	e, err := time.Parse(DateLayout, strings.TrimSpace(end))
	if err != nil {
		return Scope{}, fmt.Errorf("end date %q: %w", end, err)
	}
	if e.Before(s) {
		return Scope{}, fmt.Errorf("end date %s is before start date %s", end, start)
	}
	return Scope{Start: s, End: e, StoreCodes: NormalizeStoreCodes(stores)}, nil
}

// NormalizeStoreCodes trims, drops blanks and duplicates, and sorts.
func NormalizeStoreCodes(stores []string) []string {
	seen := make(map[string]bool, len(stores))
	var out []string
	for _, s := range stores {
		for _, part := range strings.Split(s, ",") {
			part = strings.TrimSpace(part)
			if part == "" || seen[part] {
				continue
			}
			seen[part] = true
			out = append(out, part)
		}
	}
	sort.Strings(out)
	return out
}

func (s Scope) StartDate() string { return s.Start.Format(DateLayout) }

func (s Scope) EndDate() string { return s.End.Format(DateLayout) }

// Contains reports whether a YYYY-MM-DD date falls inside the window.
func (s Scope) Contains(date string) bool {
	return date >= s.StartDate() && date <= s.EndDate()
}

// StoreLabel is the store list as persisted on jobs ("" means all stores).
func (s Scope) StoreLabel() string {
	return strings.Join(s.StoreCodes, ",")
}

func (s Scope) String() string {
	stores := s.StoreLabel()
	if stores == "" {
		stores = "all"
	}
	return fmt.Sprintf("%s..%s stores=%s", s.StartDate(), s.EndDate(), stores)
}
