package graph

import "strings"

// Scoring weights for concept matches. The components sum to 1.0 but a
// partial match rarely earns all of them, so raw scores skew low and the
// fusion layer's per-source normalization evens them out.
const (
	weightTermRatio  = 0.4
	weightStrength   = 0.3
	weightExactName  = 0.2
	weightCapability = 0.1
)

// queryTerms tokenizes a query into lowercase terms of at least three
// characters. Short tokens match too promiscuously in CONTAINS queries.
func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()")
		if len(f) >= 3 {
			terms = append(terms, f)
		}
	}
	return terms
}

// scoreMatch computes the relevance of a concept match in [0, 1]:
// the fraction of query terms found in the concept, the mean strength of
// its relationships, a bonus when the query names the concept exactly,
// and a bonus when the concept enables a capability.
func scoreMatch(terms []string, query string, m Match) float64 {
	if len(terms) == 0 {
		return 0
	}

	name := strings.ToLower(m.Concept.Name)
	description := strings.ToLower(m.Concept.Description)

	matched := 0
	for _, term := range terms {
		if strings.Contains(name, term) || strings.Contains(description, term) {
			matched++
		}
	}

	score := weightTermRatio * float64(matched) / float64(len(terms))

	if len(m.Strengths) > 0 {
		var sum float64
		for _, s := range m.Strengths {
			sum += s
		}
		score += weightStrength * (sum / float64(len(m.Strengths)))
	}

	if strings.EqualFold(strings.TrimSpace(query), m.Concept.Name) {
		score += weightExactName
	}

	if len(m.Capabilities) > 0 {
		score += weightCapability
	}

	if score > 1 {
		score = 1
	}
	return score
}
