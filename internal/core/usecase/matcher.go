package usecase

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/case-intake/internal/core/domain"
)

//go:embed synonyms.yaml
var synonymFixture []byte

var defaultSynonyms = mustLoadSynonymTable(synonymFixture)

// SynonymTable maps a canonical document name to its accepted synonyms.
// Keys and entries are stored normalized.
type SynonymTable map[string][]string

func LoadSynonymTable(raw []byte) (SynonymTable, error) {
	var parsed map[string][]string
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse synonym table: %w", err)
	}
	table := make(SynonymTable, len(parsed))
	for key, synonyms := range parsed {
		canonical := normalizeName(key)
		if canonical == "" {
			return nil, fmt.Errorf("parse synonym table: empty canonical name")
		}
		for _, synonym := range synonyms {
			if s := normalizeName(synonym); s != "" {
				table[canonical] = append(table[canonical], s)
			}
		}
	}
	return table, nil
}

func DefaultSynonymTable() SynonymTable {
	return defaultSynonyms
}

func mustLoadSynonymTable(raw []byte) SynonymTable {
	table, err := LoadSynonymTable(raw)
	if err != nil {
		panic(err)
	}
	return table
}

// Related reports whether one name is a canonical key whose synonym set
// contains the other. Both names must already be normalized.
func (t SynonymTable) Related(a, b string) bool {
	if synonyms, ok := t[a]; ok && slices.Contains(synonyms, b) {
		return true
	}
	if synonyms, ok := t[b]; ok && slices.Contains(synonyms, a) {
		return true
	}
	return false
}

type MatchTier string

const (
	TierExact     MatchTier = "exact"
	TierSubstring MatchTier = "substring"
	TierSynonym   MatchTier = "synonym"
)

type matchRule struct {
	tier    MatchTier
	matches func(extracted, slotName string) bool
}

type DocumentTypeMatcher struct {
	rules []matchRule
}

func NewDocumentTypeMatcher(synonyms SynonymTable) *DocumentTypeMatcher {
	if synonyms == nil {
		synonyms = DefaultSynonymTable()
	}
	return &DocumentTypeMatcher{
		rules: []matchRule{
			{tier: TierExact, matches: func(a, b string) bool { return a == b }},
			{tier: TierSubstring, matches: func(a, b string) bool { return strings.Contains(a, b) || strings.Contains(b, a) }},
			{tier: TierSynonym, matches: synonyms.Related},
		},
	}
}

// Match returns the pending slot the extracted type belongs to, or nil.
func (m *DocumentTypeMatcher) Match(extractedType string, slots []domain.ChecklistSlot) *domain.ChecklistSlot {
	slot, _ := m.MatchWithTier(extractedType, slots)
	return slot
}

// MatchWithTier applies the rules in priority order; within a tier the first
// pending slot in checklist order wins.
func (m *DocumentTypeMatcher) MatchWithTier(extractedType string, slots []domain.ChecklistSlot) (*domain.ChecklistSlot, MatchTier) {
	extracted := normalizeName(extractedType)
	if extracted == "" {
		return nil, ""
	}

	for _, rule := range m.rules {
		for i := range slots {
			if !slots[i].IsPending() {
				continue
			}
			name := normalizeName(slots[i].Name)
			if name == "" {
				continue
			}
			if rule.matches(extracted, name) {
				matched := slots[i]
				return &matched, rule.tier
			}
		}
	}
	return nil, ""
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
