// Package fewshot implements the Few-Shot Retriever (C11, spec §4.10):
// selecting up to k prior successful SelectorSets ranked by similarity to
// the target site. Retrieval is deterministic given the store snapshot and
// prioritizes prior successes, per spec §9's guidance that the specific
// weights are an operational choice.
package fewshot

import (
	"context"
	"sort"
	"strings"

	"github.com/lorekeeper/extractor/internal/core/types"
)

const defaultK = 5

// newsSignalWords are simple lexical cues for "this looks like a news
// site", used for the +0.3 domain-signal term (spec §4.10). The store
// persists no richer site-classification metadata, so this heuristic
// substitutes for it (documented simplification, see DESIGN.md).
var newsSignalWords = []string{"news", "article", "times", "post", "herald", "tribune", "press", "daily", "gazette"}

// Store is the read-only collaborator this package needs (satisfied by
// internal/storage/sqlite.SelectorStore).
type Store interface {
	AllBySuccessDesc(ctx context.Context, limit int) ([]*types.SelectorRecord, error)
}

// Retriever implements top_k(site, k) -> seq<SelectorRecord>.
type Retriever struct {
	Store Store
}

// Query carries the optional context used to score similarity against
// stored records: caller hints and the target's DOM Analyzer candidates
// (used as a structural fingerprint proxy, since no DOM snapshot is
// persisted alongside a SelectorRecord).
type Query struct {
	Site          string
	Hints         types.Hints
	DomCandidates *types.DomCandidates
}

// TopK implements top_k(site, k) (spec §4.10). When k <= 0 the spec default
// of 5 is used. When no candidate scores above zero similarity, the
// globally most successful records are returned instead.
func (r *Retriever) TopK(ctx context.Context, q Query, k int) ([]*types.SelectorRecord, error) {
	if k <= 0 {
		k = defaultK
	}

	// Pull a generously large pool to rank in-memory; this engine's scale
	// does not warrant a similarity index.
	pool, err := r.Store.AllBySuccessDesc(ctx, 1000)
	if err != nil {
		return nil, err
	}

	type scored struct {
		rec   *types.SelectorRecord
		score float64
	}

	var candidates []scored
	for _, rec := range pool {
		if rec.Site == q.Site {
			continue
		}
		s := similarity(q, rec)
		if s > 0 {
			candidates = append(candidates, scored{rec, s})
		}
	}

	if len(candidates) == 0 {
		if len(pool) > k {
			pool = pool[:k]
		}
		return pool, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].rec.SuccessCount > candidates[j].rec.SuccessCount
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}

	out := make([]*types.SelectorRecord, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.rec)
	}
	return out, nil
}

// similarity combines same-language-family (+0.2), news-domain-signal
// (+0.3), and structural cosine similarity (x0.5) per spec §4.10.
func similarity(q Query, rec *types.SelectorRecord) float64 {
	var score float64

	if q.Hints.Language != "" && languageFamily(q.Site) == languageFamily(rec.Site) {
		score += 0.2
	}

	if looksLikeNews(q.Site) && looksLikeNews(rec.Site) {
		score += 0.3
	}

	score += 0.5 * structuralCosine(q.DomCandidates, rec)

	return score
}

// languageFamily is a coarse proxy from the site/domain's TLD, since no
// explicit per-record language is persisted.
func languageFamily(site string) string {
	lower := strings.ToLower(site)
	switch {
	case strings.HasSuffix(lower, ".kr"), strings.Contains(lower, "yonhap"):
		return "ko"
	case strings.HasSuffix(lower, ".jp"):
		return "ja"
	case strings.HasSuffix(lower, ".de"):
		return "de"
	case strings.HasSuffix(lower, ".fr"):
		return "fr"
	default:
		return "en"
	}
}

func looksLikeNews(site string) bool {
	lower := strings.ToLower(site)
	for _, w := range newsSignalWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// structuralCosine compares the body-field HTML tag used by the target's
// top DOM Analyzer candidate against the tag embedded in the stored
// record's body selector, as a one-dimensional cosine proxy for DOM tag
// distribution similarity (the store keeps no richer tag histogram).
func structuralCosine(target *types.DomCandidates, rec *types.SelectorRecord) float64 {
	if target == nil || len(target.Body) == 0 {
		return 0
	}
	targetTag := target.Body[0].Selector
	recTag := rec.Set.Body.Path
	if targetTag == "" || recTag == "" {
		return 0
	}
	if strings.EqualFold(targetTag, recTag) {
		return 1.0
	}
	return 0
}
