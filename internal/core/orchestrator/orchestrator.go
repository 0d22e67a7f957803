// Package orchestrator implements the Master Orchestration Engine (C13,
// spec §4.12): the single external entry point wiring the Supervisor
// together with the metadata extractor, DOM analyzer, selector evaluator,
// quality scorer, proposer/validator agents, consensus calculator,
// selector store, decision logger, cost meter, and few-shot retriever into
// one request-scoped run. Grounded on the teacher's
// internal/services/pipeline orchestration style: a single struct holding
// every collaborator and a context-scoped Run method; store, decision-log and
// cost bookkeeping runs synchronously inside the request.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/lorekeeper/extractor/internal/common"
	"github.com/lorekeeper/extractor/internal/core/agents"
	"github.com/lorekeeper/extractor/internal/core/consensus"
	"github.com/lorekeeper/extractor/internal/core/costmeter"
	"github.com/lorekeeper/extractor/internal/core/domanalyzer"
	"github.com/lorekeeper/extractor/internal/core/fewshot"
	"github.com/lorekeeper/extractor/internal/core/metadata"
	"github.com/lorekeeper/extractor/internal/core/quality"
	"github.com/lorekeeper/extractor/internal/core/selector"
	"github.com/lorekeeper/extractor/internal/core/supervisor"
	"github.com/lorekeeper/extractor/internal/core/types"
	"github.com/lorekeeper/extractor/internal/storage/sqlite"
)

// Fetcher is the external collaborator that retrieves raw HTML for a URL
// (spec §1, §6.1's "the engine does not itself own network fetching").
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// DOMParser turns raw HTML into a parsed, queryable DOM.
type DOMParser interface {
	Parse(rawHTML string) (*goquery.Document, error)
}

// Request is the external Extract(...) request (spec §6.1).
type Request struct {
	URL   string
	Site  string
	Hints types.Hints
}

// Engine is the Master Orchestration Engine (C13).
type Engine struct {
	Fetcher   Fetcher
	DOMParser DOMParser

	Selectors *sqlite.SelectorStore
	Decisions *sqlite.DecisionLogStore
	CostStore *sqlite.CostMeterStore
	Meter     *costmeter.Meter
	Retriever *fewshot.Retriever

	Proposer  *agents.Proposer
	Validator *agents.Validator

	Config common.ExtractionConfig
	Logger arbor.ILogger
}

// NewEngine wires an Engine from its already-constructed collaborators.
func NewEngine(
	fetcher Fetcher,
	domParser DOMParser,
	selectors *sqlite.SelectorStore,
	decisions *sqlite.DecisionLogStore,
	costStore *sqlite.CostMeterStore,
	meter *costmeter.Meter,
	retriever *fewshot.Retriever,
	proposer *agents.Proposer,
	validator *agents.Validator,
	cfg common.ExtractionConfig,
	logger arbor.ILogger,
) *Engine {
	return &Engine{
		Fetcher: fetcher, DOMParser: domParser,
		Selectors: selectors, Decisions: decisions, CostStore: costStore, Meter: meter, Retriever: retriever,
		Proposer: proposer, Validator: validator,
		Config: cfg, Logger: logger,
	}
}

// Run implements extract(request) -> OrchestrationResult (spec §4.12, §6.1):
// fetch, parse, then loop the Supervisor until it signals completion,
// bounded by a request-level deadline.
func (e *Engine) Run(ctx context.Context, req Request) types.OrchestrationResult {
	timeout := time.Duration(e.Config.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	html, err := e.Fetcher.Fetch(ctx, req.URL)
	if err != nil {
		return types.OrchestrationResult{OK: false, Reason: fmt.Sprintf("fetch failed: %v", err)}
	}

	doc, err := e.DOMParser.Parse(html)
	if err != nil {
		return types.OrchestrationResult{OK: false, Reason: fmt.Sprintf("parse failed: %v", err)}
	}

	existing, err := e.Selectors.Get(ctx, req.Site)
	if err != nil {
		e.Logger.Warn().Err(err).Str("site", req.Site).Msg("selector store lookup failed, proceeding as new site")
		existing = nil
	}

	state := types.NewMasterState(req.URL, req.Site, req.Hints)
	state.HTML = html
	state.ParsedDOM = doc
	state.SelectorRecord = existing

	cfg := supervisor.Config{
		QualityThreshold:      e.Config.QualityThreshold,
		MaxFailuresBeforeHeal: e.Config.MaxFailuresBeforeHeal,
		UC2MaxRetries:         e.Config.UC2MaxRetries,
		UC3MaxRetries:         e.Config.UC3MaxRetries,
		MaxLoops:              e.Config.MaxLoops,
	}

	var next types.RouteNext
	next, state = supervisor.Route(state, cfg)

	for {
		select {
		case <-ctx.Done():
			return e.finalize(ctx, state, false, "request deadline exceeded")
		default:
		}

		switch next {
		case types.NextUC1:
			e.runUC1(ctx, state)
		case types.NextUC2:
			e.runUC2(ctx, state)
		case types.NextUC3:
			e.runUC3(ctx, state)
		case types.NextEnd:
			ok := state.UC1Report != nil && state.UC1Report.Score >= e.Config.QualityThreshold
			return e.finalize(ctx, state, ok, state.TerminalReason)
		}

		next, state = supervisor.Route(state, cfg)
	}
}

// runUC1 is the Rule-Based Quality Check subsystem: apply the known
// SelectorSet via the Selector Evaluator, build an ExtractedArticle, score
// it, and advance CurrentUC (spec §4.1).
func (e *Engine) runUC1(ctx context.Context, state *types.MasterState) {
	doc := state.ParsedDOM.(*goquery.Document)

	var set types.SelectorSet
	if state.SelectorRecord != nil {
		set = state.SelectorRecord.Set
	}

	report := selector.Evaluate(doc, set)

	// Metadata Extractor fallback per field when selectors return empty
	// text (spec §4.12's UC1 skeleton). Computed lazily since most UC1
	// passes over a healthy selector set never need it.
	title, body, date := report.Values.Title, report.Values.Body, report.Values.Date
	if title == "" || body == "" || date == "" {
		cand := metadata.Extract(state.HTML)
		if title == "" {
			title = cand.Title
		}
		if body == "" {
			body = cand.Body
		}
		if date == "" {
			date = cand.Date
		}
	}

	article := types.ExtractedArticle{
		Title:            title,
		Body:             body,
		Date:             date,
		URL:              state.URL,
		Site:             state.Site,
		ExtractedAt:      time.Now().UTC(),
		ExtractionMethod: methodFor(state.SelectorRecord),
	}

	qr := quality.Score(article, state.URL)
	state.Article = &article
	state.UC1Report = &qr
	state.CurrentUC = types.UC1

	if qr.Score >= e.Config.QualityThreshold {
		if state.SelectorRecord != nil {
			if err := e.Selectors.MarkSuccess(ctx, state.Site); err != nil {
				e.Logger.Warn().Err(err).Msg("failed to mark selector success")
			}
		}
	}
	// FailureCount is owned by the Supervisor (spec §4.11's routeAfterUC1):
	// it is checked against MAX_FAILURES_BEFORE_HEAL before being bumped, so
	// the increment belongs to the route transition, not this subsystem.
}

// methodFor derives the ExtractionMethod a UC1 pass should report, mirroring
// whichever subsystem most recently produced the active SelectorRecord
// (spec §3 ExtractedArticle.extraction_method; scenario B/C/D expect "heal"
// and "discover" to survive the UC1 re-run that follows acceptance).
func methodFor(rec *types.SelectorRecord) types.ExtractionMethod {
	if rec == nil {
		return types.MethodRule
	}
	switch rec.Source {
	case types.SourceUC2Heal:
		return types.MethodHeal
	case types.SourceUC3DiscoverJSONLD, types.SourceUC3DiscoverLLM:
		return types.MethodDiscover
	default:
		return types.MethodRule
	}
}

// runUC2 is the Self-Healing subsystem: propose a repaired SelectorSet from
// the page's HTML sample plus few-shot examples and site hints, validate it,
// consensus-score it, and persist an accepted replacement (spec §4.6-§4.8).
// The record's failure counter is bumped only on the exhausting reject.
func (e *Engine) runUC2(ctx context.Context, state *types.MasterState) {
	state.CurrentUC = types.UC2
	doc := state.ParsedDOM.(*goquery.Document)

	fewShot, err := e.Retriever.TopK(ctx, fewshot.Query{Site: state.Site, Hints: state.Hints}, e.Config.FewShotK)
	if err != nil {
		e.Logger.Warn().Err(err).Msg("few-shot retrieval failed, proceeding without examples")
	}

	htmlMax := e.Config.ProposerHTMLMax
	proposerOut := e.Proposer.Propose(ctx, state.Site, state.URL, types.UseCaseUC2, agents.ProposeInput{
		HTMLSample: truncate(state.HTML, htmlMax),
		FewShot:    fewShot,
		SiteHints:  hintsString(state.Hints),
	})

	validatorOut := e.Validator.Validate(ctx, state.Site, state.URL, types.UseCaseUC2, doc, proposerOut.Selectors, state.HTML)

	result := consensus.Calculate(
		proposerOut.Confidence, validatorOut.Confidence, validatorOut.ExtractionQuality,
		consensus.Weights(e.Config.ConsensusWeights),
		consensus.Tiers{High: e.Config.UC2Consensus.High, Medium: e.Config.UC2Consensus.Medium},
		&validatorOut.ChosenSelectors,
	)
	state.UC2Result = &result

	var action types.FinalAction
	if result.Selectors != nil {
		action = types.ActionAccept
		if _, err := e.Selectors.Replace(ctx, state.Site, *result.Selectors, types.SourceUC2Heal); err != nil {
			e.Logger.Warn().Err(err).Str("site", state.Site).Msg("failed to persist healed selector set")
		} else if rec, err := e.Selectors.Get(ctx, state.Site); err == nil {
			state.SelectorRecord = rec
		}
	} else {
		action = e.rejectAction(state, types.UseCaseUC2, e.Config.UC2MaxRetries)
		if action == types.ActionReject {
			if err := e.Selectors.MarkFailure(ctx, state.Site); err != nil {
				e.Logger.Warn().Err(err).Msg("failed to mark selector failure")
			}
		}
	}

	e.logDecision(ctx, state, types.UseCaseUC2, &proposerOut, &validatorOut, result, action)
}

// rejectAction distinguishes a retry (another attempt for this use case is
// still available) from a terminal reject (retries exhausted), so
// DecisionLogEntry.FinalAction reflects which one actually happened (spec
// §6.2 enumerates "retry" as distinct from "reject").
func (e *Engine) rejectAction(state *types.MasterState, useCase types.UseCase, maxRetries int) types.FinalAction {
	if state.RetryCounts[useCase] < maxRetries {
		return types.ActionRetry
	}
	return types.ActionReject
}

// runUC3 is the Discovery subsystem: try JSON-LD/Open Graph metadata first
// (fast path), falling back to DOM-analyzer-seeded LLM discovery (spec
// §4.2-§4.3, §4.5-§4.7).
func (e *Engine) runUC3(ctx context.Context, state *types.MasterState) {
	state.CurrentUC = types.UC3
	doc := state.ParsedDOM.(*goquery.Document)

	cand := metadata.Extract(state.HTML)
	state.MetadataCandidate = &cand

	if cand.Quality >= e.Config.JSONLDQualityThreshold {
		// Open-Graph/article meta tags are the DOM-addressable surface that
		// mirrors the JSON-LD fields we just scored; storing sentinels against
		// them (rather than the literal "title"/"body"/"date" strings, which
		// match no real <meta> attribute) lets a later UC1 pass re-resolve the
		// same fields from the DOM instead of only from the one-shot
		// MetadataCandidate (spec §4.4's og:title example).
		set := types.SelectorSet{
			Title:      types.Selector{Kind: types.SelectorKindMeta, Path: "og:title"},
			Body:       types.Selector{Kind: types.SelectorKindMeta, Path: "og:description"},
			Date:       types.Selector{Kind: types.SelectorKindMeta, Path: "article:published_time"},
			Source:     types.SourceUC3DiscoverJSONLD,
			Confidence: cand.Quality,
		}
		result := types.ConsensusResult{Score: cand.Quality, Tier: tierFor(cand.Quality, e.Config.UC3Consensus), Selectors: &set}
		state.UC3Result = &result
		action := types.ActionFastPath
		if result.Tier == types.TierReject {
			action = e.rejectAction(state, types.UseCaseUC3, e.Config.UC3MaxRetries)
		} else {
			e.persistDiscovery(ctx, state, set)
		}
		e.logDecision(ctx, state, types.UseCaseUC3, nil, nil, result, action)
		return
	}

	domCands := domanalyzer.Analyze(doc)

	fewShot, err := e.Retriever.TopK(ctx, fewshot.Query{Site: state.Site, Hints: state.Hints, DomCandidates: &domCands}, e.Config.FewShotK)
	if err != nil {
		e.Logger.Warn().Err(err).Msg("few-shot retrieval failed, proceeding without examples")
	}

	htmlMax := e.Config.DiscovererHTMLMax
	proposerOut := e.Proposer.Propose(ctx, state.Site, state.URL, types.UseCaseUC3, agents.ProposeInput{
		HTMLSample:    truncate(state.HTML, htmlMax),
		FewShot:       fewShot,
		SiteHints:     hintsString(state.Hints),
		DomCandidates: &domCands,
	})
	proposerOut.Selectors.Source = types.SourceUC3DiscoverLLM

	validatorOut := e.Validator.Validate(ctx, state.Site, state.URL, types.UseCaseUC3, doc, proposerOut.Selectors, state.HTML)

	result := consensus.Calculate(
		proposerOut.Confidence, validatorOut.Confidence, validatorOut.ExtractionQuality,
		consensus.Weights(e.Config.ConsensusWeights),
		consensus.Tiers{High: e.Config.UC3Consensus.High, Medium: e.Config.UC3Consensus.Medium},
		&validatorOut.ChosenSelectors,
	)
	state.UC3Result = &result

	var action types.FinalAction
	if result.Selectors != nil {
		action = types.ActionAccept
		e.persistDiscovery(ctx, state, *result.Selectors)
	} else {
		action = e.rejectAction(state, types.UseCaseUC3, e.Config.UC3MaxRetries)
	}

	e.logDecision(ctx, state, types.UseCaseUC3, &proposerOut, &validatorOut, result, action)
}

func (e *Engine) persistDiscovery(ctx context.Context, state *types.MasterState, set types.SelectorSet) {
	if state.SelectorRecord == nil {
		rec, err := e.Selectors.PutNew(ctx, state.Site, set, set.Source)
		if err != nil {
			// StoreContention (spec §7): another request created the record
			// concurrently. Re-read and proceed as an existing-site UC1 pass.
			e.Logger.Warn().Err(err).Str("site", state.Site).Msg("selector record already exists, re-reading")
			if rec, rerr := e.Selectors.Get(ctx, state.Site); rerr == nil {
				state.SelectorRecord = rec
			}
			return
		}
		state.SelectorRecord = rec
		return
	}

	rec, err := e.Selectors.Replace(ctx, state.Site, set, set.Source)
	if err != nil {
		e.Logger.Warn().Err(err).Str("site", state.Site).Msg("failed to persist discovered selector set")
		return
	}
	state.SelectorRecord = rec
}

func (e *Engine) logDecision(ctx context.Context, state *types.MasterState, useCase types.UseCase, p *types.ProposerOutput, v *types.ValidatorOutput, result types.ConsensusResult, action types.FinalAction) {
	entry := types.DecisionLogEntry{
		URL: state.URL, Site: state.Site, UseCase: useCase,
		ProposerOutput: p, ValidatorOutput: v,
		ConsensusScore: result.Score, ConsensusTier: result.Tier,
		FinalAction: action, RetryCount: state.RetryCounts[useCase],
	}
	if err := e.Decisions.Append(ctx, &entry); err != nil {
		e.Logger.Warn().Err(err).Msg("failed to append decision log entry")
	}
}

func (e *Engine) finalize(ctx context.Context, state *types.MasterState, ok bool, reason string) types.OrchestrationResult {
	result := types.OrchestrationResult{
		OK:             ok,
		Article:        state.Article,
		History:        state.History,
		Reason:         reason,
		SelectorChange: state.CurrentUC == types.UC2 || state.CurrentUC == types.UC3,
	}
	if state.UC1Report != nil {
		score := state.UC1Report.Score
		result.Quality = &score
		method := state.Article.ExtractionMethod
		result.Method = &method
	}

	if total, err := e.CostStore.TotalForRequest(ctx, state.Site, state.URL); err == nil {
		result.CostUSD = total
	} else {
		e.Logger.Warn().Err(err).Msg("failed to total request cost")
	}

	return result
}

func tierFor(score float64, t common.ConsensusTierConfig) types.ConsensusTier {
	switch {
	case score >= t.High:
		return types.TierHigh
	case score >= t.Medium:
		return types.TierMedium
	default:
		return types.TierReject
	}
}

func truncate(s string, max int) string {
	if max > 0 && len(s) > max {
		return s[:max]
	}
	return s
}

func hintsString(h types.Hints) string {
	if h.Language == "" && h.Category == "" {
		return ""
	}
	return fmt.Sprintf("language=%q category=%q", h.Language, h.Category)
}
