// Package enrich binds the enrichment API's six result shapes to paginated
// TSV exports: per-signature results, consensus perturbations and mechanisms
// of action, each unpaired or paired up/down.
package enrich

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Kind is the aggregation level of a result set.
type Kind string

const (
	KindSingle    Kind = "single"
	KindConsensus Kind = "consensus"
	KindMoA       Kind = "moa"
)

// Mode is one of the six export shapes. It is fixed for the lifetime of an
// export.
type Mode struct {
	Kind   Kind
	Paired bool
}

// Modes lists every supported mode.
var Modes = []Mode{
	{KindSingle, false},
	{KindConsensus, false},
	{KindMoA, false},
	{KindSingle, true},
	{KindConsensus, true},
	{KindMoA, true},
}

// ParseKind maps a kind name onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(s)); k {
	case KindSingle, KindConsensus, KindMoA:
		return k, nil
	case "moas":
		return KindMoA, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// String returns the mode's metric label, e.g. "paired_consensus".
func (m Mode) String() string {
	if m.Paired {
		return "paired_" + string(m.Kind)
	}
	return string(m.Kind)
}

// Counted reports whether the mode's upstream query reports a total count.
func (m Mode) Counted() bool {
	return m.Kind != KindSingle
}

// ErrUnknownColumn is returned when a requested column does not exist in a mode.
var ErrUnknownColumn = errors.New("unknown column")

var (
	singleColumns = []string{
		"term", "geneSetSize", "moa", "nOverlap", "oddsRatio", "pvalue",
		"adjPvalue", "count", "approved", "geneSetHash",
	}

	aggregateColumns = []string{
		"drug", "countSig", "countInsig", "countUpSig", "countDownSig",
		"oddsRatio", "pvalue", "adjPvalue", "pvalueUp", "adjPvalueUp",
		"oddsRatioUp", "pvalueDown", "adjPvalueDown", "oddsRatioDown",
	}

	pairedSingleColumns = []string{
		"term", "nMimicOverlap", "pvalueMimic", "adjPvalueMimic",
		"nReverseOverlap", "pvalueReverse", "adjPvalueReverse",
		"geneSetSizeUp", "geneSetSizeDown", "moa", "fdaApproved",
		"signatureCount",
	}

	pairedAggregateColumns = []string{
		"drug", "countSig", "countInsig", "countUpSig", "countDownSig",
		"oddsRatio", "pvalueUp", "adjPvalueUp", "oddsRatioUp",
		"pvalueDown", "adjPvalueDown", "oddsRatioDown",
	}

	// derived from the signature term
	termColumns = []string{
		"perturbation", "perturbationId", "cellLine", "timepoint", "batch",
		"concentration", "direction",
	}
)

// Columns returns the declared output columns of the mode.
func (m Mode) Columns() []string {
	switch {
	case m.Kind == KindSingle && !m.Paired:
		return slices.Clone(singleColumns)
	case m.Kind == KindSingle:
		return slices.Clone(pairedSingleColumns)
	case !m.Paired:
		return slices.Clone(aggregateColumns)
	default:
		return slices.Clone(pairedAggregateColumns)
	}
}

// AvailableColumns returns every column a row of the mode carries: the
// declared columns followed by extended ones.
func (m Mode) AvailableColumns() []string {
	cols := m.Columns()
	switch {
	case m.Kind == KindSingle && !m.Paired:
		cols = append(cols, termColumns...)
	case m.Kind == KindSingle:
		cols = append(cols, slices.DeleteFunc(slices.Clone(termColumns), func(c string) bool { return c == "direction" })...)
	case m.Paired:
		cols = append(cols, "pvalue", "adjPvalue")
	}
	return cols
}

// SelectColumns validates a caller-chosen column list against the mode. An
// empty selection returns the declared columns.
func (m Mode) SelectColumns(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return m.Columns(), nil
	}
	available := m.AvailableColumns()
	out := make([]string, 0, len(requested))
	for _, col := range requested {
		col = strings.TrimSpace(col)
		if col == "" {
			continue
		}
		if !slices.Contains(available, col) {
			return nil, fmt.Errorf("%w %q for mode %s", ErrUnknownColumn, col, m)
		}
		out = append(out, col)
	}
	if len(out) == 0 {
		return m.Columns(), nil
	}
	return out, nil
}
