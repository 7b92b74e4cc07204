package enrich

// GraphQL operation names.
const (
	OpSingle          = "EnrichmentQuerySingle"
	OpConsensus       = "EnrichmentQueryConsensus"
	OpMoAs            = "EnrichmentQueryMoAs"
	OpPairedSingle    = "PairEnrichmentQuerySingle"
	OpPairedConsensus = "PairEnrichmentQueryConsensus"
	OpPairedMoAs      = "PairEnrichmentQueryMoAs"
	OpFetchGeneSet    = "FetchUserGeneSet"
	OpTermSearch      = "TermSearchGeneSets"
)

// Result paths under "data".
const (
	pathEnrich       = "currentBackground.enrich"
	pathPairedEnrich = "currentBackground.pairedEnrich"
	pathUserGeneSet  = "userGeneSet"
	pathTermSearch   = "geneSetTermSearch"
)

const geneSetFields = `
        term
        nGeneIds
        geneSetFdaCountsById {
          nodes {
            approved
            count
            moa
          }
        }`

const aggregateFields = `
      drug
      countSignificant
      countInsignificant
      countUpSignificant
      oddsRatio
      pvalue
      adjPvalue
      pvalueUp
      adjPvalueUp
      oddsRatioUp
      pvalueDown
      adjPvalueDown
      oddsRatioDown`

const singleQuery = `query EnrichmentQuerySingle($genes: [String]!, $filterTerm: String = "", $offset: Int = 0, $first: Int = 10, $filterFda: Boolean = false, $sort: String = "pvalue", $filterKo: Boolean = false, $topN: Int = 10000) {
  currentBackground {
    enrich(genes: $genes, filterTerm: $filterTerm, offset: $offset, first: $first, filterFda: $filterFda, sortby: $sort, filterKo: $filterKo, topN: $topN) {
      nodes {
        geneSetHash
        nOverlap
        oddsRatio
        pvalue
        adjPvalue
        geneSets {
          nodes {` + geneSetFields + `
          }
        }
      }
      totalCount
    }
  }
}`

const consensusQuery = `query EnrichmentQueryConsensus($genes: [String]!, $filterTerm: String = "", $offset: Int = 0, $first: Int = 10, $filterFda: Boolean = false, $sort: String = "pvalue", $filterKo: Boolean = false, $topN: Int = 10000) {
  currentBackground {
    enrich(genes: $genes, filterTerm: $filterTerm, offset: $offset, first: $first, filterFda: $filterFda, sortby: $sort, filterKo: $filterKo, topN: $topN) {
      consensusCount
      consensus {` + aggregateFields + `
      }
    }
  }
}`

const moasQuery = `query EnrichmentQueryMoAs($genes: [String]!, $filterTerm: String = "", $offset: Int = 0, $first: Int = 10, $filterFda: Boolean = false, $sort: String = "pvalue", $filterKo: Boolean = false, $topN: Int = 10000) {
  currentBackground {
    enrich(genes: $genes, filterTerm: $filterTerm, offset: $offset, first: $first, filterFda: $filterFda, sortby: $sort, filterKo: $filterKo, topN: $topN) {
      moasCount
      moas {` + aggregateFields + `
      }
    }
  }
}`

const pairedSingleQuery = `query PairEnrichmentQuerySingle($genesUp: [String]!, $genesDown: [String]!, $filterTerm: String = "", $offset: Int = 0, $first: Int = 10, $filterFda: Boolean = false, $sort: String = "pvalue", $filterKo: Boolean = false, $topN: Int = 10000) {
  currentBackground {
    pairedEnrich(genesUp: $genesUp, genesDown: $genesDown, filterTerm: $filterTerm, offset: $offset, first: $first, filterFda: $filterFda, sortby: $sort, filterKo: $filterKo, topN: $topN) {
      nodes {
        mimickerOverlap
        pvalueMimic
        adjPvalueMimic
        reverserOverlap
        pvalueReverse
        adjPvalueReverse
        geneSet {
          nodes {` + geneSetFields + `
          }
        }
      }
      totalCount
    }
  }
}`

const pairedConsensusQuery = `query PairEnrichmentQueryConsensus($genesUp: [String]!, $genesDown: [String]!, $filterTerm: String = "", $offset: Int = 0, $first: Int = 10, $filterFda: Boolean = false, $sort: String = "pvalue", $filterKo: Boolean = false, $topN: Int = 10000) {
  currentBackground {
    pairedEnrich(genesUp: $genesUp, genesDown: $genesDown, filterTerm: $filterTerm, offset: $offset, first: $first, filterFda: $filterFda, sortby: $sort, filterKo: $filterKo, topN: $topN) {
      consensusCount
      consensus {` + aggregateFields + `
      }
    }
  }
}`

const pairedMoAsQuery = `query PairEnrichmentQueryMoAs($genesUp: [String]!, $genesDown: [String]!, $filterTerm: String = "", $offset: Int = 0, $first: Int = 10, $filterFda: Boolean = false, $sort: String = "pvalue", $filterKo: Boolean = false, $topN: Int = 10000) {
  currentBackground {
    pairedEnrich(genesUp: $genesUp, genesDown: $genesDown, filterTerm: $filterTerm, offset: $offset, first: $first, filterFda: $filterFda, sortby: $sort, filterKo: $filterKo, topN: $topN) {
      moasCount
      moas {` + aggregateFields + `
      }
    }
  }
}`

const fetchUserGeneSetQuery = `query FetchUserGeneSet($id: UUID!) {
  userGeneSet(id: $id) {
    genes
    description
  }
}`

const termSearchQuery = `query TermSearchGeneSets($filterTerm: [String]!, $first: Int = 10, $after: Cursor) {
  geneSetTermSearch(terms: $filterTerm, first: $first, after: $after) {
    nodes {
      term
      genes {
        nodes {
          symbol
        }
      }
    }
    pageInfo {
      hasNextPage
      endCursor
    }
  }
}`
