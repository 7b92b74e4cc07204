package enrich

// FDACount is the FDA-approval record joined to a gene set.
type FDACount struct {
	Count    *int    `json:"count"`
	Approved *bool   `json:"approved"`
	MoA      *string `json:"moa"`
}

// GeneSet is one underlying signature of an enrichment result.
type GeneSet struct {
	Term      string `json:"term"`
	NGeneIDs  *int   `json:"nGeneIds"`
	FDACounts struct {
		Nodes []*FDACount `json:"nodes"`
	} `json:"geneSetFdaCountsById"`
}

// FDA returns the first FDA record of the gene set, or nil.
func (g *GeneSet) FDA() *FDACount {
	if g == nil || len(g.FDACounts.Nodes) == 0 {
		return nil
	}
	return g.FDACounts.Nodes[0]
}

// SingleNode is one ranked result of an unpaired enrichment. Identical gene
// sets from several signatures share one node.
type SingleNode struct {
	GeneSetHash string   `json:"geneSetHash"`
	NOverlap    *int     `json:"nOverlap"`
	OddsRatio   *float64 `json:"oddsRatio"`
	PValue      *float64 `json:"pvalue"`
	AdjPValue   *float64 `json:"adjPvalue"`
	GeneSets    struct {
		Nodes []*GeneSet `json:"nodes"`
	} `json:"geneSets"`
}

// PairedNode is one ranked result of an up/down enrichment.
type PairedNode struct {
	MimickerOverlap  *int     `json:"mimickerOverlap"`
	PValueMimic      *float64 `json:"pvalueMimic"`
	AdjPValueMimic   *float64 `json:"adjPvalueMimic"`
	ReverserOverlap  *int     `json:"reverserOverlap"`
	PValueReverse    *float64 `json:"pvalueReverse"`
	AdjPValueReverse *float64 `json:"adjPvalueReverse"`
	GeneSet          struct {
		Nodes []*GeneSet `json:"nodes"`
	} `json:"geneSet"`
}

// AggregateNode is one consensus perturbation or mechanism of action.
type AggregateNode struct {
	Drug               *string  `json:"drug"`
	CountSignificant   *int     `json:"countSignificant"`
	CountInsignificant *int     `json:"countInsignificant"`
	CountUpSignificant *int     `json:"countUpSignificant"`
	OddsRatio          *float64 `json:"oddsRatio"`
	PValue             *float64 `json:"pvalue"`
	AdjPValue          *float64 `json:"adjPvalue"`
	PValueUp           *float64 `json:"pvalueUp"`
	AdjPValueUp        *float64 `json:"adjPvalueUp"`
	OddsRatioUp        *float64 `json:"oddsRatioUp"`
	PValueDown         *float64 `json:"pvalueDown"`
	AdjPValueDown      *float64 `json:"adjPvalueDown"`
	OddsRatioDown      *float64 `json:"oddsRatioDown"`
}

// TermSearchNode is one gene set matched by a term search.
type TermSearchNode struct {
	Term  string `json:"term"`
	Genes struct {
		Nodes []GeneSymbol `json:"nodes"`
	} `json:"genes"`
}

// GeneSymbol is one gene of a term-search gene set.
type GeneSymbol struct {
	Symbol string `json:"symbol"`
}

// Envelopes as returned under currentBackground.enrich / pairedEnrich.
type (
	singleEnvelope struct {
		Nodes      []*SingleNode `json:"nodes"`
		TotalCount *int          `json:"totalCount"`
	}

	pairedEnvelope struct {
		Nodes      []*PairedNode `json:"nodes"`
		TotalCount *int          `json:"totalCount"`
	}

	consensusEnvelope struct {
		Consensus      []*AggregateNode `json:"consensus"`
		ConsensusCount *int             `json:"consensusCount"`
	}

	moaEnvelope struct {
		MoAs      []*AggregateNode `json:"moas"`
		MoAsCount *int             `json:"moasCount"`
	}
)
