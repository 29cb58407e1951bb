// Package normalize cleans a raw CRM export: it deduplicates records by
// email, fills missing contact fields and canonicalizes phone numbers.
package normalize

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/crmlens/internal/table"
)

// Required column names.
const (
	ColEmail   = "Email"
	ColPhone   = "Phone"
	ColCompany = "Company"
)

// DefaultMissingMarkers mirrors the NA tokens recognized by common dataframe
// CSV readers.
var DefaultMissingMarkers = []string{
	"", "NA", "N/A", "n/a", "NaN", "nan", "-NaN", "null", "NULL", "None", "#N/A", "<NA>",
}

// Options controls normalization.
type Options struct {
	// MissingMarkers are trimmed cell values treated as missing.
	MissingMarkers []string
	// FillValue replaces missing Phone and Company values.
	FillValue string
}

// DefaultOptions returns the constant-fill policy with an empty fill value.
func DefaultOptions() Options {
	return Options{MissingMarkers: DefaultMissingMarkers}
}

// SchemaError reports required columns absent from the input.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Missing, ", "))
}

// Stats summarizes what a normalization pass changed.
type Stats struct {
	InputRows         int `json:"input_rows"`
	OutputRows        int `json:"output_rows"`
	DuplicatesRemoved int `json:"duplicates_removed"`
	// Imputed counts filled missing values per column.
	Imputed map[string]int `json:"imputed"`
	// PhonesFormatted counts phones rewritten to AAA-BBB-CCCC.
	PhonesFormatted int `json:"phones_formatted"`
	// PhonesNonCanonical counts non-empty phones left as-is because they do
	// not reduce to ten digits.
	PhonesNonCanonical int `json:"phones_non_canonical"`
}

// Normalize returns a cleaned copy of raw.
func Normalize(raw *table.Table, opt Options) (*table.Table, error) {
	t, _, err := NormalizeWithStats(raw, opt)
	return t, err
}

// NormalizeWithStats is Normalize that also reports what changed.
func NormalizeWithStats(raw *table.Table, opt Options) (*table.Table, Stats, error) {
	st := Stats{InputRows: raw.Len(), Imputed: map[string]int{ColPhone: 0, ColCompany: 0}}
	if err := checkSchema(raw); err != nil {
		return nil, st, err
	}
	missing := markerSet(opt.MissingMarkers)
	phoneIdx, _ := raw.Index(ColPhone)
	companyIdx, _ := raw.Index(ColCompany)

	seen := make(map[string]struct{}, raw.Len())
	kept := raw.Filter(func(i int) bool {
		key := emailKey(raw.Value(i, ColEmail), missing)
		if _, dup := seen[key]; dup {
			return false
		}
		seen[key] = struct{}{}
		return true
	})
	st.DuplicatesRemoved = raw.Len() - kept.Len()

	out, err := kept.Map(func(_ int, row []string) []string {
		if isMissing(row[companyIdx], missing) {
			row[companyIdx] = opt.FillValue
			st.Imputed[ColCompany]++
		}
		if isMissing(row[phoneIdx], missing) {
			row[phoneIdx] = opt.FillValue
			st.Imputed[ColPhone]++
		}
		formatted, ok := FormatPhone(row[phoneIdx])
		switch {
		case ok && formatted != row[phoneIdx]:
			st.PhonesFormatted++
		case !ok && strings.TrimSpace(row[phoneIdx]) != "":
			st.PhonesNonCanonical++
		}
		row[phoneIdx] = formatted
		return row
	})
	if err != nil {
		return nil, st, fmt.Errorf("normalize rows: %w", err)
	}
	st.OutputRows = out.Len()
	return out, st, nil
}

func checkSchema(t *table.Table) error {
	var miss []string
	for _, c := range []string{ColEmail, ColPhone, ColCompany} {
		if !t.Has(c) {
			miss = append(miss, c)
		}
	}
	if len(miss) > 0 {
		return &SchemaError{Missing: miss}
	}
	return nil
}

// emailKey collapses every missing marker onto one key so missing emails
// deduplicate against each other.
func emailKey(v string, missing map[string]struct{}) string {
	if isMissing(v, missing) {
		return "\x00missing"
	}
	return v
}

func markerSet(markers []string) map[string]struct{} {
	m := make(map[string]struct{}, len(markers)+1)
	m[""] = struct{}{}
	for _, s := range markers {
		m[strings.TrimSpace(s)] = struct{}{}
	}
	return m
}

func isMissing(v string, missing map[string]struct{}) bool {
	_, ok := missing[strings.TrimSpace(v)]
	return ok
}
