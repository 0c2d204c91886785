package ingest

import (
	"sort"
	"strings"

	"github.com/careatlas/evidence/internal/models"
)

// Priority tiers: documents about the target condition are ingested first,
// then documents from known issuing organizations, then everything else.
// An interrupted run therefore indexes the highest-value content first.
const (
	tierTargetCondition = iota
	tierKnownOrg
	tierOther
)

func classify(doc models.RawDocument, targetCondition string) int {
	lower := strings.ToLower(doc.Path)
	if targetCondition != "" && strings.Contains(lower, strings.ToLower(targetCondition)) {
		return tierTargetCondition
	}
	upper := strings.ToUpper(doc.Path)
	for _, org := range knownOrgs {
		if strings.Contains(upper, org) {
			return tierKnownOrg
		}
	}
	return tierOther
}

// prioritize orders documents by tier, keeping the enumeration order stable
// within a tier.
func prioritize(docs []models.RawDocument, targetCondition string) []models.RawDocument {
	out := make([]models.RawDocument, len(docs))
	copy(out, docs)
	sort.SliceStable(out, func(i, j int) bool {
		return classify(out[i], targetCondition) < classify(out[j], targetCondition)
	})
	return out
}
