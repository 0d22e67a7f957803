package orchestrator

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/lorekeeper/extractor/internal/common"
	"github.com/lorekeeper/extractor/internal/core/agents"
	"github.com/lorekeeper/extractor/internal/core/costmeter"
	"github.com/lorekeeper/extractor/internal/core/fewshot"
	"github.com/lorekeeper/extractor/internal/core/types"
	"github.com/lorekeeper/extractor/internal/storage/sqlite"
)

// fakeFetcher hands back a fixed HTML body regardless of URL, standing in
// for the real network-backed Fetcher in spec §8's scenario tests.
type fakeFetcher struct{ html string }

func (f fakeFetcher) Fetch(_ context.Context, _ string) (string, error) { return f.html, nil }

// fakeDOMParser delegates to the real goquery parser so Evaluate/Analyze
// exercise real DOM traversal, without pulling in a network-backed Fetcher.
type fakeDOMParser struct{}

func (fakeDOMParser) Parse(rawHTML string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
}

type harness struct {
	engine    *Engine
	selectors *sqlite.SelectorStore
	decisions *sqlite.DecisionLogStore
}

func newHarness(t *testing.T, html string) harness {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	logger := arbor.NewLogger()
	db, err := sqlite.Open(dbPath, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	selectors := sqlite.NewSelectorStore(db)
	decisions := sqlite.NewDecisionLogStore(db)
	costStore := sqlite.NewCostMeterStore(db)
	meter := costmeter.NewMeter(costStore)
	retriever := &fewshot.Retriever{Store: selectors}

	cfg := common.DefaultConfig().Extraction

	engine := NewEngine(
		fakeFetcher{html: html},
		fakeDOMParser{},
		selectors, decisions, costStore, meter, retriever,
		&agents.Proposer{}, &agents.Validator{},
		cfg, logger,
	)

	return harness{engine: engine, selectors: selectors, decisions: decisions}
}

var cleanBody = strings.Repeat("Local reporters covered the story in detail today. ", 6)

var cleanArticleHTML = `<html><head>
<meta property="og:title" content="placeholder"/>
</head><body>
<h1 class="headline">A fully formed news headline</h1>
<article>` + cleanBody + `</article>
<time class="pub-date">2026-07-20</time>
</body></html>`

// Scenario A (spec §8): known site, clean HTML, UC1 accepts on the first
// pass with zero LLM involvement.
func TestRun_ScenarioA_KnownSiteCleanUC1Only(t *testing.T) {
	h := newHarness(t, cleanArticleHTML)
	ctx := context.Background()

	set := types.SelectorSet{
		Title:  types.Selector{Kind: types.SelectorKindCSS, Path: "h1.headline"},
		Body:   types.Selector{Kind: types.SelectorKindCSS, Path: "article"},
		Date:   types.Selector{Kind: types.SelectorKindCSS, Path: "time.pub-date"},
		Source: types.SourceUC1Reuse,
	}
	_, err := h.selectors.PutNew(ctx, "example.test", set, set.Source)
	require.NoError(t, err)

	result := h.engine.Run(ctx, Request{URL: "https://example.test/a/1", Site: "example.test"})

	require.True(t, result.OK, "reason: %s", result.Reason)
	require.NotNil(t, result.Quality)
	assert.Equal(t, 100, *result.Quality)
	require.NotNil(t, result.Method)
	assert.Equal(t, types.MethodRule, *result.Method)
	assert.Equal(t, []string{"start → uc1", "uc1 → end"}, result.History)
	assert.Equal(t, 0.0, result.CostUSD)
	assert.False(t, result.SelectorChange)
}

var jsonLDBody = strings.Repeat("Local reporters covered the story in detail today. ", 6)

var jsonLDArticleHTML = `<html><head>
<script type="application/ld+json">
{"@type":"NewsArticle","headline":"A fully formed news headline","articleBody":"` + jsonLDBody + `","datePublished":"2026-07-20T08:00:00Z"}
</script>
<meta property="og:title" content="A fully formed news headline"/>
<meta property="og:description" content="` + jsonLDBody + `"/>
<meta property="article:published_time" content="2026-07-20T08:00:00Z"/>
</head><body></body></html>`

// Scenario C (spec §8): unknown site, JSON-LD yields a high-quality
// MetadataCandidate, so UC3 takes the fast path with zero LLM calls and the
// persisted selector set resolves against the real DOM on the UC1 replay.
func TestRun_ScenarioC_UnknownSiteJSONLDFastPath(t *testing.T) {
	h := newHarness(t, jsonLDArticleHTML)
	ctx := context.Background()

	result := h.engine.Run(ctx, Request{URL: "https://example.test/b/1", Site: "newsite"})

	require.True(t, result.OK, "reason: %s", result.Reason)
	assert.Equal(t, []string{"start → uc3", "uc3 → uc1", "uc1 → end"}, result.History)
	assert.Equal(t, 0.0, result.CostUSD)
	require.NotNil(t, result.Quality)
	assert.Equal(t, 100, *result.Quality)
	require.NotNil(t, result.Method)
	assert.Equal(t, types.MethodDiscover, *result.Method)

	rec, err := h.selectors.Get(ctx, "newsite")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, types.SourceUC3DiscoverJSONLD, rec.Source)

	entries, err := h.decisions.BySite(ctx, "newsite", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, types.UseCaseUC3, entries[0].UseCase)
	assert.Equal(t, types.ActionFastPath, entries[0].FinalAction)
}

// When JSON-LD metadata quality falls below the fast-path threshold, UC3
// must fall through to DOM-analyzer-seeded LLM discovery instead of taking
// the shortcut (spec §4.2).
func TestRun_UC3FallsThroughToLLMDiscoveryBelowThreshold(t *testing.T) {
	html := `<html><head></head><body><p>no structured metadata here</p></body></html>`
	h := newHarness(t, html)

	// The zero-value Proposer has no Provider and a nil Meter: Factory.Invoke
	// rejects the empty provider, and recording that call's cost through the
	// nil Meter panics. Reaching that call at all proves the fast path was
	// correctly skipped, which is all this test asserts.
	assert.Panics(t, func() {
		h.engine.Run(context.Background(), Request{URL: "https://example.test/c/1", Site: "anothersite"})
	})
}
