package analytics

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/noah-isme/scorecard-api/internal/models"
)

// Canonical subject names produced by the normalizer.
const (
	SubjectPhysics     = "physics"
	SubjectChemistry   = "chemistry"
	SubjectMathematics = "mathematics"
	SubjectBiology     = "biology"
)

type canonicalField int

const (
	fieldStudentID canonicalField = iota
	fieldStudentName
	fieldTestNumber
	fieldTotalScore
	fieldNestedScores
	fieldSubject
)

type fieldAlias struct {
	field   canonicalField
	subject string
}

// Aliases are listed in priority order; keys are compared after folding case
// and dropping '_', '-', '.' and spaces, so "phy_score", "PhyScore" and
// "phy-score" are the same key.
var (
	studentIDAliases    = []string{"studentid", "sid", "rollno", "rollnumber", "userid"}
	studentNameAliases  = []string{"studentname", "name", "fullname", "displayname"}
	testNumberAliases   = []string{"testnumber", "testnum", "testno", "test"}
	totalScoreAliases   = []string{"totalscore", "total", "totalmarks", "overallscore"}
	nestedScoresAliases = []string{"subjectscores", "scores", "subjects"}
	subjectAliases      = []struct {
		subject string
		aliases []string
	}{
		{SubjectPhysics, []string{"physicsscore", "physscore", "physcore", "physics", "phys", "phy"}},
		{SubjectChemistry, []string{"chemistryscore", "chemscore", "chemistry", "chem"}},
		{SubjectMathematics, []string{"mathematicsscore", "mathsscore", "mathscore", "mathematics", "maths", "math"}},
		{SubjectBiology, []string{"biologyscore", "bioscore", "biology", "bio"}},
	}
)

var aliasIndex = buildAliasIndex()

func buildAliasIndex() map[string]fieldAlias {
	index := make(map[string]fieldAlias)
	add := func(alias string, fa fieldAlias) {
		if _, exists := index[alias]; exists {
			panic(fmt.Sprintf("analytics: duplicate field alias %q", alias))
		}
		index[alias] = fa
	}
	for _, a := range studentIDAliases {
		add(a, fieldAlias{field: fieldStudentID})
	}
	for _, a := range studentNameAliases {
		add(a, fieldAlias{field: fieldStudentName})
	}
	for _, a := range testNumberAliases {
		add(a, fieldAlias{field: fieldTestNumber})
	}
	for _, a := range totalScoreAliases {
		add(a, fieldAlias{field: fieldTotalScore})
	}
	for _, a := range nestedScoresAliases {
		add(a, fieldAlias{field: fieldNestedScores})
	}
	for _, s := range subjectAliases {
		for _, a := range s.aliases {
			add(a, fieldAlias{field: fieldSubject, subject: s.subject})
		}
	}
	return index
}

// FoldKey reduces a raw field name to its comparison form.
func FoldKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', '.', ' ':
			return -1
		}
		return unicode.ToLower(r)
	}, key)
}

// CanonicalSubject maps a raw subject key onto its canonical name. Unknown
// subjects keep their folded key.
func CanonicalSubject(raw string) string {
	folded := FoldKey(raw)
	if fa, ok := aliasIndex[folded]; ok && fa.field == fieldSubject {
		return fa.subject
	}
	return folded
}

// NormalizeResult carries canonical results plus the counters for records and
// values that were rejected.
type NormalizeResult struct {
	Results     []models.TestResult
	Diagnostics models.Diagnostics
}

// Normalize maps heterogeneous raw records into canonical TestResults.
// Records without a student id or a valid non-negative integer test number
// are dropped and counted; they never abort the batch.
func Normalize(records []models.RawRecord, treatZeroAsAbsent bool) NormalizeResult {
	out := NormalizeResult{Results: make([]models.TestResult, 0, len(records))}
	out.Diagnostics.RecordsReceived = len(records)

	for _, record := range records {
		keys := foldRecordKeys(record)

		studentID, ok := lookupID(record, keys, studentIDAliases)
		if !ok {
			out.Diagnostics.MissingStudentID++
			continue
		}
		testNumber, ok := lookupTestNumber(record, keys)
		if !ok {
			out.Diagnostics.InvalidTestNumber++
			continue
		}

		result := models.TestResult{
			StudentID:     studentID,
			StudentName:   lookupString(record, keys, studentNameAliases),
			TestNumber:    testNumber,
			SubjectScores: make(map[string]float64),
		}

		admit := func(subject string, raw interface{}) {
			if _, seen := result.SubjectScores[subject]; seen {
				return
			}
			score, present, valid := toFloat(raw)
			if !present {
				return
			}
			if !valid {
				out.Diagnostics.InvalidScoreValues++
				return
			}
			if score == 0 && treatZeroAsAbsent {
				return
			}
			result.SubjectScores[subject] = score
		}

		for _, s := range subjectAliases {
			for _, alias := range s.aliases {
				if rawKey, found := keys[alias]; found && record[rawKey] != nil {
					admit(s.subject, record[rawKey])
					break
				}
			}
		}
		if nested, found := firstPresent(record, keys, nestedScoresAliases); found {
			if scores, isMap := nested.(map[string]interface{}); isMap {
				for _, rawSubject := range sortedKeys(scores) {
					admit(CanonicalSubject(rawSubject), scores[rawSubject])
				}
			}
		}

		total, hasTotal := 0.0, false
		if raw, found := firstPresent(record, keys, totalScoreAliases); found {
			v, present, valid := toFloat(raw)
			switch {
			case present && valid:
				total, hasTotal = v, true
			case present:
				out.Diagnostics.InvalidScoreValues++
			}
		}
		if !hasTotal {
			total = sumScores(result.SubjectScores)
		}
		result.TotalScore = total

		out.Results = append(out.Results, result)
	}
	return out
}

// foldRecordKeys indexes the record's keys by folded form. When two raw keys
// fold identically the lexicographically smaller one wins so the outcome does
// not depend on map iteration order.
func foldRecordKeys(record models.RawRecord) map[string]string {
	keys := make(map[string]string, len(record))
	for raw := range record {
		folded := FoldKey(raw)
		if existing, ok := keys[folded]; ok && existing < raw {
			continue
		}
		keys[folded] = raw
	}
	return keys
}

func firstPresent(record models.RawRecord, keys map[string]string, aliases []string) (interface{}, bool) {
	for _, alias := range aliases {
		rawKey, ok := keys[alias]
		if !ok {
			continue
		}
		if v := record[rawKey]; v != nil {
			return v, true
		}
	}
	return nil, false
}

func lookupID(record models.RawRecord, keys map[string]string, aliases []string) (string, bool) {
	raw, ok := firstPresent(record, keys, aliases)
	if !ok {
		return "", false
	}
	var id string
	switch v := raw.(type) {
	case string:
		id = strings.TrimSpace(v)
	case json.Number:
		id = v.String()
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			id = strconv.FormatInt(int64(v), 10)
		} else {
			id = strconv.FormatFloat(v, 'f', -1, 64)
		}
	case int:
		id = strconv.Itoa(v)
	case int64:
		id = strconv.FormatInt(v, 10)
	}
	return id, id != ""
}

func lookupString(record models.RawRecord, keys map[string]string, aliases []string) string {
	raw, ok := firstPresent(record, keys, aliases)
	if !ok {
		return ""
	}
	if s, isString := raw.(string); isString {
		return strings.TrimSpace(s)
	}
	return ""
}

func lookupTestNumber(record models.RawRecord, keys map[string]string) (int, bool) {
	raw, ok := firstPresent(record, keys, testNumberAliases)
	if !ok {
		return 0, false
	}
	v, present, valid := toFloat(raw)
	if !present || !valid || v < 0 || v != math.Trunc(v) || v > math.MaxInt32 {
		return 0, false
	}
	return int(v), true
}

// toFloat converts a loosely typed JSON value into a number. present is false
// for nil and empty strings; valid is false for values that cannot be parsed.
func toFloat(raw interface{}) (value float64, present, valid bool) {
	switch v := raw.(type) {
	case nil:
		return 0, false, false
	case float64:
		value = v
	case float32:
		value = float64(v)
	case int:
		value = float64(v)
	case int32:
		value = float64(v)
	case int64:
		value = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, true, false
		}
		value = f
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, false, false
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, true, false
		}
		value = f
	default:
		return 0, true, false
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, true, false
	}
	return value, true, true
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sumScores adds scores in subject order so float rounding is reproducible.
func sumScores(scores map[string]float64) float64 {
	subjects := make([]string, 0, len(scores))
	for s := range scores {
		subjects = append(subjects, s)
	}
	sort.Strings(subjects)
	var total float64
	for _, s := range subjects {
		total += scores[s]
	}
	return total
}
