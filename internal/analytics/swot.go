package analytics

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/noah-isme/scorecard-api/internal/models"
)

//go:embed swot_codes.yaml
var swotCodesYAML []byte

type swotCodeDefinition struct {
	Code     string              `yaml:"code"`
	Category models.SwotCategory `yaml:"category"`
	Title    string              `yaml:"title"`
	order    int
}

var swotVocabulary = mustLoadSwotVocabulary(swotCodesYAML)

func mustLoadSwotVocabulary(raw []byte) map[string]swotCodeDefinition {
	vocab, err := loadSwotVocabulary(raw)
	if err != nil {
		panic(err)
	}
	return vocab
}

func loadSwotVocabulary(raw []byte) (map[string]swotCodeDefinition, error) {
	var table struct {
		Codes []swotCodeDefinition `yaml:"codes"`
	}
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("decode swot vocabulary: %w", err)
	}
	vocab := make(map[string]swotCodeDefinition, len(table.Codes))
	for i, def := range table.Codes {
		key := normalizeMetricCode(def.Code)
		if key == "" || def.Title == "" {
			return nil, fmt.Errorf("swot vocabulary entry %d is incomplete", i)
		}
		if categoryOrder(def.Category) < 0 {
			return nil, fmt.Errorf("swot code %q has unknown category %q", def.Code, def.Category)
		}
		if _, dup := vocab[key]; dup {
			return nil, fmt.Errorf("swot code %q declared twice", def.Code)
		}
		def.Code = key
		def.order = i
		vocab[key] = def
	}
	return vocab, nil
}

func normalizeMetricCode(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	return strings.NewReplacer("_", "-", " ", "-").Replace(code)
}

func categoryOrder(category models.SwotCategory) int {
	for i, c := range models.SwotCategories {
		if c == category {
			return i
		}
	}
	return -1
}

// ParseSwotCategory matches a category name case-insensitively.
func ParseSwotCategory(raw string) (models.SwotCategory, bool) {
	for _, c := range models.SwotCategories {
		if strings.EqualFold(string(c), strings.TrimSpace(raw)) {
			return c, true
		}
	}
	return "", false
}

// ParseSwotExclusions parses "Category:Title" pairs.
func ParseSwotExclusions(raw []string) ([]models.SwotExclusion, error) {
	out := make([]models.SwotExclusion, 0, len(raw))
	for _, item := range raw {
		category, title, found := strings.Cut(item, ":")
		if !found || strings.TrimSpace(title) == "" {
			return nil, fmt.Errorf("swot exclusion %q must look like Category:Title", item)
		}
		parsed, ok := ParseSwotCategory(category)
		if !ok {
			return nil, fmt.Errorf("swot exclusion %q has unknown category %q", item, category)
		}
		out = append(out, models.SwotExclusion{Category: parsed, Title: strings.TrimSpace(title)})
	}
	return out, nil
}

// SwotReport is the categorised form of a raw SWOT payload. It is built once
// and can then serve any number of audience views.
type SwotReport struct {
	Entries      []models.SwotEntry `json:"entries"`
	Subjects     []string           `json:"subjects"`
	UnknownCodes []string           `json:"unknown_codes,omitempty"`
	Malformed    int                `json:"malformed"`
}

// Categorize maps each metric code onto its (category, title) pair. Codes
// outside the vocabulary are skipped and reported; the data source may add
// codes before this table learns about them.
func Categorize(payload models.RawSwotPayload) SwotReport {
	report := SwotReport{Entries: []models.SwotEntry{}, Subjects: []string{}}
	subjects := make(map[string]struct{})
	entryIndex := make(map[string]int)

	codes := make([]string, 0, len(payload))
	for code := range payload {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	for _, rawCode := range codes {
		def, known := swotVocabulary[normalizeMetricCode(rawCode)]
		if !known {
			report.UnknownCodes = append(report.UnknownCodes, rawCode)
			continue
		}
		bySubject, ok := payload[rawCode].(map[string]interface{})
		if !ok {
			report.Malformed++
			continue
		}
		for _, rawSubject := range sortedKeys(bySubject) {
			topics, ok := topicList(bySubject[rawSubject])
			if !ok {
				report.Malformed++
				continue
			}
			subject := CanonicalSubject(rawSubject)
			subjects[subject] = struct{}{}
			// Spellings of one code (or one subject) share a single entry.
			key := def.Code + "\x00" + subject
			if i, seen := entryIndex[key]; seen {
				report.Entries[i].Topics = mergeTopics(report.Entries[i].Topics, topics)
				continue
			}
			entryIndex[key] = len(report.Entries)
			report.Entries = append(report.Entries, models.SwotEntry{
				Category: def.Category,
				Subject:  subject,
				Title:    def.Title,
				Code:     def.Code,
				Topics:   topics,
			})
		}
	}

	sort.SliceStable(report.Entries, func(i, j int) bool {
		a, b := report.Entries[i], report.Entries[j]
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		if ca, cb := categoryOrder(a.Category), categoryOrder(b.Category); ca != cb {
			return ca < cb
		}
		return swotVocabulary[a.Code].order < swotVocabulary[b.Code].order
	})
	for subject := range subjects {
		report.Subjects = append(report.Subjects, subject)
	}
	sort.Strings(report.Subjects)
	return report
}

func mergeTopics(into, more []string) []string {
	seen := make(map[string]struct{}, len(into))
	for _, t := range into {
		seen[t] = struct{}{}
	}
	for _, t := range more {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		into = append(into, t)
	}
	return into
}

func topicList(raw interface{}) ([]string, bool) {
	switch v := raw.(type) {
	case nil:
		return []string{}, true
	case string:
		if t := strings.TrimSpace(v); t != "" {
			return []string{t}, true
		}
		return []string{}, true
	case []string:
		return append([]string{}, v...), true
	case []interface{}:
		topics := make([]string, 0, len(v))
		for _, item := range v {
			s, isString := item.(string)
			if !isString {
				return nil, false
			}
			topics = append(topics, s)
		}
		return topics, true
	default:
		return nil, false
	}
}

func exclusionKey(category models.SwotCategory, title string) string {
	return string(category) + "\x00" + strings.ToLower(strings.TrimSpace(title))
}

// Filter drops the entries matching any exclusion. Titles compare case-insensitively.
func (r SwotReport) Filter(deny []models.SwotExclusion) []models.SwotEntry {
	denied := make(map[string]struct{}, len(deny))
	for _, d := range deny {
		denied[exclusionKey(d.Category, d.Title)] = struct{}{}
	}
	out := make([]models.SwotEntry, 0, len(r.Entries))
	for _, entry := range r.Entries {
		if _, skip := denied[exclusionKey(entry.Category, entry.Title)]; skip {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// View groups the filtered entries per subject. Every subject present in the
// payload is kept, with empty quadrants when everything was excluded.
func (r SwotReport) View(deny []models.SwotExclusion) []models.SubjectSwot {
	bySubject := make(map[string]*models.SubjectSwot, len(r.Subjects))
	view := make([]models.SubjectSwot, len(r.Subjects))
	for i, subject := range r.Subjects {
		view[i] = models.SubjectSwot{
			Subject:       subject,
			Strengths:     []models.SwotEntry{},
			Weaknesses:    []models.SwotEntry{},
			Opportunities: []models.SwotEntry{},
			Threats:       []models.SwotEntry{},
		}
		bySubject[subject] = &view[i]
	}
	for _, entry := range r.Filter(deny) {
		group, ok := bySubject[entry.Subject]
		if !ok {
			continue
		}
		switch entry.Category {
		case models.SwotStrengths:
			group.Strengths = append(group.Strengths, entry)
		case models.SwotWeaknesses:
			group.Weaknesses = append(group.Weaknesses, entry)
		case models.SwotOpportunities:
			group.Opportunities = append(group.Opportunities, entry)
		case models.SwotThreats:
			group.Threats = append(group.Threats, entry)
		}
	}
	return view
}
