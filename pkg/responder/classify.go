package responder

import (
	"fmt"
	"strings"

	"github.com/papercomputeco/cohort/pkg/vector"
)

// Kind is the class of reference record a query is answered from.
type Kind string

const (
	KindCompany     Kind = "company"
	KindApplication Kind = "application"
)

// Classify picks the record kind for query. Any mention of "application",
// case-insensitive, selects application records.
func Classify(query string) Kind {
	if strings.Contains(strings.ToLower(query), "application") {
		return KindApplication
	}
	return KindCompany
}

// ParseKind accepts "company" or "application", case-insensitive.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindCompany, KindApplication:
		return k, nil
	default:
		return "", fmt.Errorf("unknown record kind %q: want %q or %q", s, KindCompany, KindApplication)
	}
}

// Filter is the retrieval filter for k.
func (k Kind) Filter() vector.Filter {
	return vector.KindFilter(string(k))
}
