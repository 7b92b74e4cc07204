package enrich

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/enrich-export/pkg/term"
	"github.com/Sternrassler/enrich-export/pkg/tsv"
)

var termParseFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "enrich_term_parse_failures_total",
	Help: "Total signature terms with fields that could not be decoded",
})

// parseTerm decodes raw and records a failure; the returned Term is always
// usable.
func parseTerm(raw string) term.Term {
	t, err := term.Parse(raw)
	if err != nil {
		termParseFailures.Inc()
		log.Debug().
			Str("term", raw).
			Err(err).
			Msg("Term not fully parsed")
	}
	return t
}

// termFields adds the decoded term fields to rec.
func termFields(rec tsv.Record, t term.Term) {
	rec["perturbation"] = t.Perturbation
	rec["perturbationId"] = t.PerturbationID
	rec["cellLine"] = t.CellLine
	rec["timepoint"] = t.Timepoint
	rec["batch"] = t.Batch
	rec["concentration"] = t.Concentration
}

// ProjectSingle flattens an unpaired result node into one row per gene set it
// groups. Node statistics are repeated on every row.
func ProjectSingle(n *SingleNode) []tsv.Record {
	if n == nil {
		return nil
	}
	rows := make([]tsv.Record, 0, len(n.GeneSets.Nodes))
	for _, gs := range n.GeneSets.Nodes {
		if gs == nil {
			continue
		}
		t := parseTerm(gs.Term)
		fda := gs.FDA()

		rec := tsv.Record{
			"term":        gs.Term,
			"geneSetSize": deref(gs.NGeneIDs),
			"moa":         fdaMoA(fda),
			"nOverlap":    deref(n.NOverlap),
			"oddsRatio":   deref(n.OddsRatio),
			"pvalue":      deref(n.PValue),
			"adjPvalue":   deref(n.AdjPValue),
			"count":       fdaCount(fda, 1),
			"approved":    fdaApproved(fda),
			"geneSetHash": n.GeneSetHash,
			"direction":   string(t.Direction),
		}
		termFields(rec, t)
		rows = append(rows, rec)
	}
	return rows
}

// ProjectPaired flattens an up/down result node into a single row. The node's
// gene sets are matched to their direction by term; when neither matches, the
// first gene set stands for both sides.
func ProjectPaired(n *PairedNode) []tsv.Record {
	if n == nil || len(n.GeneSet.Nodes) == 0 {
		return nil
	}

	var up, down *GeneSet
	for _, gs := range n.GeneSet.Nodes {
		if gs == nil {
			continue
		}
		switch {
		case up == nil && term.HasDirection(gs.Term, term.DirectionUp):
			up = gs
		case down == nil && term.HasDirection(gs.Term, term.DirectionDown):
			down = gs
		}
	}
	first := firstGeneSet(n.GeneSet.Nodes)
	if first == nil {
		return nil
	}
	if up == nil {
		up = first
	}
	if down == nil {
		down = first
	}

	t := parseTerm(up.Term)
	fda := up.FDA()
	if fda == nil {
		fda = down.FDA()
	}

	rec := tsv.Record{
		"term":             t.Base,
		"nMimicOverlap":    deref(n.MimickerOverlap),
		"pvalueMimic":      deref(n.PValueMimic),
		"adjPvalueMimic":   deref(n.AdjPValueMimic),
		"nReverseOverlap":  deref(n.ReverserOverlap),
		"pvalueReverse":    deref(n.PValueReverse),
		"adjPvalueReverse": deref(n.AdjPValueReverse),
		"geneSetSizeUp":    deref(up.NGeneIDs),
		"geneSetSizeDown":  deref(down.NGeneIDs),
		"moa":              fdaMoA(fda),
		"fdaApproved":      fdaApproved(fda),
		"signatureCount":   fdaCount(fda, 0),
	}
	termFields(rec, t)
	return []tsv.Record{rec}
}

// ProjectAggregate flattens a consensus or MoA node into a single row.
func ProjectAggregate(n *AggregateNode) []tsv.Record {
	if n == nil {
		return nil
	}
	sig, upSig := 0, 0
	if n.CountSignificant != nil {
		sig = *n.CountSignificant
	}
	if n.CountUpSignificant != nil {
		upSig = *n.CountUpSignificant
	}

	return []tsv.Record{{
		"drug":          deref(n.Drug),
		"countSig":      deref(n.CountSignificant),
		"countInsig":    deref(n.CountInsignificant),
		"countUpSig":    deref(n.CountUpSignificant),
		"countDownSig":  sig - upSig,
		"oddsRatio":     deref(n.OddsRatio),
		"pvalue":        deref(n.PValue),
		"adjPvalue":     deref(n.AdjPValue),
		"pvalueUp":      deref(n.PValueUp),
		"adjPvalueUp":   deref(n.AdjPValueUp),
		"oddsRatioUp":   deref(n.OddsRatioUp),
		"pvalueDown":    deref(n.PValueDown),
		"adjPvalueDown": deref(n.AdjPValueDown),
		"oddsRatioDown": deref(n.OddsRatioDown),
	}}
}

func firstGeneSet(sets []*GeneSet) *GeneSet {
	for _, gs := range sets {
		if gs != nil {
			return gs
		}
	}
	return nil
}

// deref returns *p, or an untyped nil that serializes as an empty field.
func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func fdaMoA(f *FDACount) any {
	if f == nil {
		return nil
	}
	return deref(f.MoA)
}

// fdaCount returns the signature count of f, or def when it is absent or zero.
func fdaCount(f *FDACount, def int) int {
	if f == nil || f.Count == nil || *f.Count == 0 {
		return def
	}
	return *f.Count
}

func fdaApproved(f *FDACount) string {
	if f == nil || f.Approved == nil {
		return ""
	}
	if *f.Approved {
		return "true"
	}
	return "false"
}
