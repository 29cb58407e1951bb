// Package report renders pipeline results as Markdown, JSON, CSV and XLSX.
package report

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/KaramelBytes/crmlens/internal/anomaly"
	"github.com/KaramelBytes/crmlens/internal/estimate"
	"github.com/KaramelBytes/crmlens/internal/normalize"
	"github.com/KaramelBytes/crmlens/internal/pipeline"
	"github.com/KaramelBytes/crmlens/internal/table"
)

// ColumnSummary captures kind and statistics per result column.
type ColumnSummary struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	NonNull int      `json:"non_null"`
	Missing int      `json:"missing"`
	Unique  int      `json:"unique"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Mean    *float64 `json:"mean,omitempty"`
	Std     *float64 `json:"std,omitempty"`
}

// Bar is one Company vs Predicted_Sales entry.
type Bar struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Summary is the renderer-neutral digest of a pipeline result.
type Summary struct {
	RunID      string          `json:"run_id"`
	Name       string          `json:"name,omitempty"`
	Records    int             `json:"records"`
	Anomalies  int             `json:"anomalies"`
	Fitted     int             `json:"fitted"`
	Unscorable int             `json:"unscorable"`
	Threshold  float64         `json:"threshold"`
	Cleaning   normalize.Stats `json:"cleaning"`
	Columns    []ColumnSummary `json:"columns"`
	// Sales aggregates Predicted_Sales per company, in first-seen order.
	Sales []Bar `json:"sales"`
}

// Summarize digests res. name labels the input, usually its file name.
func Summarize(res *pipeline.Result, name string) *Summary {
	s := &Summary{
		RunID:      res.RunID,
		Name:       name,
		Records:    res.Table.Len(),
		Anomalies:  res.Anomalies.Len(),
		Fitted:     res.Fitted,
		Unscorable: len(res.Unscorable),
		Threshold:  res.Threshold,
		Cleaning:   res.Normalize,
	}
	for _, c := range res.Table.Columns() {
		s.Columns = append(s.Columns, summarizeColumn(res.Table, c))
	}
	s.Sales = SalesBars(res.Table)
	return s
}

func summarizeColumn(t *table.Table, c table.Column) ColumnSummary {
	cs := ColumnSummary{Name: c.Name, Kind: c.Kind.String()}
	vals, _ := t.Column(c.Name)
	uniq := make(map[string]struct{}, len(vals))
	// numeric stats via Welford
	var n int
	var mean, m2 float64
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range vals {
		v = strings.TrimSpace(v)
		if v == "" {
			cs.Missing++
			continue
		}
		cs.NonNull++
		uniq[v] = struct{}{}
		if c.Kind == table.String {
			continue
		}
		x, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		n++
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
		delta := x - mean
		mean += delta / float64(n)
		m2 += delta * (x - mean)
	}
	cs.Unique = len(uniq)
	if n > 0 {
		cs.Min, cs.Max, cs.Mean = &lo, &hi, &mean
		std := 0.0
		if n > 1 {
			std = math.Sqrt(m2 / float64(n-1))
		}
		cs.Std = &std
	}
	return cs
}

// SalesBars returns mean Predicted_Sales per Company. Records with an empty
// company are grouped under "(unknown)".
func SalesBars(t *table.Table) []Bar {
	if !t.Has(estimate.ColPredicted) {
		return nil
	}
	vals, ok, err := t.Floats(estimate.ColPredicted)
	if err != nil {
		return nil
	}
	type acc struct {
		sum float64
		n   int
	}
	var order []string
	groups := map[string]*acc{}
	for i := range vals {
		if !ok[i] {
			continue
		}
		label := strings.TrimSpace(t.Value(i, normalize.ColCompany))
		if label == "" {
			label = "(unknown)"
		}
		g := groups[label]
		if g == nil {
			g = &acc{}
			groups[label] = g
			order = append(order, label)
		}
		g.sum += vals[i]
		g.n++
	}
	out := make([]Bar, 0, len(order))
	for _, l := range order {
		g := groups[l]
		out = append(out, Bar{Label: l, Value: g.sum / float64(g.n)})
	}
	return out
}

// TopBars returns at most n bars with the highest values, ties by label.
func TopBars(bars []Bar, n int) []Bar {
	cp := append([]Bar(nil), bars...)
	sort.SliceStable(cp, func(i, j int) bool {
		if cp[i].Value == cp[j].Value {
			return cp[i].Label < cp[j].Label
		}
		return cp[i].Value > cp[j].Value
	})
	if n > 0 && len(cp) > n {
		cp = cp[:n]
	}
	return cp
}

// IsAnomalous reports whether row i of t carries the anomalous label.
func IsAnomalous(t *table.Table, i int) bool {
	return t.Value(i, anomaly.ColScore) == anomaly.LabelAnomalous
}
