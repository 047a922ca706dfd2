package ledger

import (
	"strings"

	"github.com/enel-control/enel-cli/internal/textnorm"
)

// KeyMapper turns a unit's display label into the key used to look up its
// responsible recipients.
type KeyMapper interface {
	Key(label string) string
}

// DefaultAdminKeywords mark administrative units.
var DefaultAdminKeywords = []string{"ADM", "SEDE", "ADMIN"}

// CodeKeyMapper extracts a unit code from its label:
//
//	"BR 21-0270 - CENTRO" -> "BR 21-0270"
//	"ADM – MAUA – SP"     -> "ADM"
//
// Labels matching neither rule map to themselves, trimmed.
type CodeKeyMapper struct {
	AdminKeywords []string
}

// Key implements KeyMapper.
func (m CodeKeyMapper) Key(label string) string {
	s := strings.TrimSpace(label)
	if s == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToUpper(s), "BR ") && strings.Contains(s, " - ") {
		code, _, _ := strings.Cut(s, " - ")
		return strings.TrimSpace(code)
	}
	keywords := m.AdminKeywords
	if keywords == nil {
		keywords = DefaultAdminKeywords
	}
	if textnorm.HasWord(s, keywords...) {
		return strings.ToUpper(strings.Fields(s)[0])
	}
	return s
}

// StaticKeyMapper looks labels up in an explicit table and defers to Fallback
// for anything not listed.
type StaticKeyMapper struct {
	Keys     map[string]string
	Fallback KeyMapper
}

// Key implements KeyMapper.
func (m StaticKeyMapper) Key(label string) string {
	if k, ok := m.Keys[strings.TrimSpace(label)]; ok {
		return k
	}
	if m.Fallback != nil {
		return m.Fallback.Key(label)
	}
	return strings.TrimSpace(label)
}

// OtherGroup collects rows that match no keyword.
const OtherGroup = "OUTROS"

// Grouper assigns export groups to unit labels.
type Grouper interface {
	// Groups lists group names in export order.
	Groups() []string
	Group(label string) string
}

// KeywordGrouper puts labels containing Keyword in their own group, first,
// and everything else in OUTROS.
type KeywordGrouper struct {
	Keyword string
}

// DefaultGrouper separates PIA units from the rest.
func DefaultGrouper() KeywordGrouper {
	return KeywordGrouper{Keyword: "PIA"}
}

// Groups implements Grouper.
func (g KeywordGrouper) Groups() []string {
	return []string{strings.ToUpper(g.Keyword), OtherGroup}
}

// Group implements Grouper.
func (g KeywordGrouper) Group(label string) string {
	if g.Keyword != "" && textnorm.ContainsAny(label, g.Keyword) {
		return strings.ToUpper(g.Keyword)
	}
	return OtherGroup
}
