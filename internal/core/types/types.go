// Package types holds the shared data model for the extraction engine:
// requests, documents, selector sets, agent outputs, and the in-memory
// MasterState threaded through the Supervisor/Orchestrator.
package types

import "time"

// SelectorKind discriminates a Selector's locator strategy.
type SelectorKind string

const (
	SelectorKindCSS  SelectorKind = "css"
	SelectorKindMeta SelectorKind = "meta"
)

// Selector is either a CSS-style path or a sentinel referring to a metadata
// key (e.g. "og:title" under SelectorKindMeta, serialized as "meta:og:title").
type Selector struct {
	Kind SelectorKind
	Path string
}

// String renders the selector in the spec's sentinel string form, e.g.
// "meta:og:title" or a bare CSS path.
func (s Selector) String() string {
	if s.Kind == SelectorKindMeta {
		return "meta:" + s.Path
	}
	return s.Path
}

// ParseSelector parses the sentinel string form back into a Selector.
func ParseSelector(raw string) Selector {
	const metaPrefix = "meta:"
	if len(raw) > len(metaPrefix) && raw[:len(metaPrefix)] == metaPrefix {
		return Selector{Kind: SelectorKindMeta, Path: raw[len(metaPrefix):]}
	}
	return Selector{Kind: SelectorKindCSS, Path: raw}
}

// SelectorSource records which subsystem produced a SelectorSet.
type SelectorSource string

const (
	SourceUC1Reuse          SelectorSource = "uc1-reuse"
	SourceUC2Heal           SelectorSource = "uc2-heal"
	SourceUC3DiscoverJSONLD SelectorSource = "uc3-discover-json-ld"
	SourceUC3DiscoverLLM    SelectorSource = "uc3-discover-llm"
)

// SelectorSet is the triple of field locators used to extract an article.
type SelectorSet struct {
	Title Selector
	Body  Selector
	Date  Selector

	Source     SelectorSource
	Confidence float64
}

// MetadataSource identifies which embedded-metadata channel produced a
// MetadataCandidate.
type MetadataSource string

const (
	MetadataSourceJSONLD MetadataSource = "json-ld"
	MetadataSourceMeta   MetadataSource = "meta"
)

// MetadataCandidate is the output of the Metadata Extractor (C1).
type MetadataCandidate struct {
	Title   string
	Body    string
	Date    string
	Source  MetadataSource
	Quality float64
}

// ExtractionMethod records which subsystem ultimately produced an article.
type ExtractionMethod string

const (
	MethodRule     ExtractionMethod = "rule"
	MethodHeal     ExtractionMethod = "heal"
	MethodDiscover ExtractionMethod = "discover"
)

// ExtractedArticle is the final structured output of one request.
type ExtractedArticle struct {
	Title            string
	Body             string
	Date             string
	URL              string
	Site             string
	ExtractedAt      time.Time
	ExtractionMethod ExtractionMethod
}

// QualityBreakdown holds the per-criterion contribution to a QualityReport.
type QualityBreakdown struct {
	Title    float64
	Body     float64
	Date     float64
	URL      float64
	Category float64
	Author   float64
}

// QualityReport is the output of the Quality Scorer (C4).
type QualityReport struct {
	Score     int
	Breakdown QualityBreakdown
	Reason    string
}

// Candidate is one ranked DOM candidate locator for a field (C2 output).
type Candidate struct {
	Selector   string
	Confidence float64
}

// DomCandidates groups ranked per-field candidates from the DOM Analyzer.
type DomCandidates struct {
	Title []Candidate
	Body  []Candidate
	Date  []Candidate
}

// ExtractionReport is the output of the Selector Evaluator (C3).
type ExtractionReport struct {
	Values struct {
		Title string
		Body  string
		Date  string
	}
	PerFieldQuality struct {
		Title float64
		Body  float64
		Date  float64
	}
	Combined float64
}

// ProposerOutput is the Proposer Agent's (C5) result.
type ProposerOutput struct {
	Selectors  SelectorSet
	Confidence float64
	Reasoning  string
}

// ValidatorOutput is the Validator Agent's (C6) result. ExtractionQuality is
// the Selector Evaluator's measured Combined score against ChosenSelectors
// (spec §4.6 step 1) — the "e" term consensus.Calculate needs (spec §4.7).
type ValidatorOutput struct {
	IsValid           bool
	Confidence        float64
	ChosenSelectors   SelectorSet
	ExtractionQuality float64
	Feedback          string
}

// ConsensusTier buckets a consensus score into an operational decision.
type ConsensusTier string

const (
	TierHigh   ConsensusTier = "high"
	TierMedium ConsensusTier = "medium"
	TierReject ConsensusTier = "reject"
)

// ConsensusResult is the output of the Consensus Calculator (C7).
type ConsensusResult struct {
	Score              float64
	Tier               ConsensusTier
	Selectors          *SelectorSet
	AgentContributions map[string]float64
}

// SelectorRecord is the persisted, site-keyed selector state (C8).
type SelectorRecord struct {
	Site          string
	Set           SelectorSet
	Source        SelectorSource
	SuccessCount  int
	FailureCount  int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UseCase identifies which self-healing/discovery subsystem ran.
type UseCase string

const (
	UseCaseUC2 UseCase = "uc2"
	UseCaseUC3 UseCase = "uc3"
)

// FinalAction is the terminal disposition recorded in a DecisionLogEntry.
type FinalAction string

const (
	ActionAccept   FinalAction = "accept"
	ActionReject   FinalAction = "reject"
	ActionRetry    FinalAction = "retry"
	ActionFastPath FinalAction = "fast_path"
)

// DecisionLogEntry is one append-only record of a UC2/UC3 decision (C9).
type DecisionLogEntry struct {
	ID             string
	URL            string
	Site           string
	UseCase        UseCase
	ProposerOutput *ProposerOutput
	ValidatorOutput *ValidatorOutput
	ConsensusScore float64
	ConsensusTier  ConsensusTier
	FinalAction    FinalAction
	RetryCount     int
	Timestamp      time.Time
}

// CostMetric is one append-only LLM call cost record (C10).
type CostMetric struct {
	Timestamp   time.Time
	Provider    string
	Model       string
	UseCase     UseCase
	Site        string
	URL         string
	InputTokens int
	OutputTokens int
	InputCost   float64
	OutputCost  float64
	TotalCost   float64
}

// CurrentUC identifies which subsystem the MasterState is presently in, or
// has most recently exited.
type CurrentUC string

const (
	UCNone CurrentUC = ""
	UC1    CurrentUC = "uc1"
	UC2    CurrentUC = "uc2"
	UC3    CurrentUC = "uc3"
)

// MasterState is the per-request, in-memory state threaded through the
// Supervisor and Orchestrator. It is never persisted.
type MasterState struct {
	URL  string
	Site string
	Hints Hints

	HTML           string
	ParsedDOM      any // *goquery.Document, kept untyped here to avoid an import cycle
	SelectorRecord *SelectorRecord

	MetadataCandidate *MetadataCandidate
	UC1Report         *QualityReport
	UC2Result         *ConsensusResult
	UC3Result         *ConsensusResult

	Article *ExtractedArticle

	CurrentUC    CurrentUC
	FailureCount int
	LoopCount    int
	History      []string

	// RetryCounts is keyed by UseCase and tracks in-use-case retries,
	// reset whenever the supervisor leaves that use case.
	RetryCounts map[UseCase]int

	// LastUC3WasAccept records whether the most recently exited non-UC1
	// subsystem was an accepted UC3 discovery, used to implement the
	// post-discovery no-reentry rule.
	LastUC3WasAccept bool

	TerminalReason string
	Done           bool
}

// Hints carries optional caller-supplied context for an Article Request.
type Hints struct {
	Language string
	Category string
}

// Clone returns a shallow copy of the state, used by the Supervisor so
// route(state) -> (next, state') never mutates its input (spec §4.11: "pure
// function").
func (m *MasterState) Clone() *MasterState {
	c := *m
	c.History = append([]string(nil), m.History...)
	c.RetryCounts = make(map[UseCase]int, len(m.RetryCounts))
	for k, v := range m.RetryCounts {
		c.RetryCounts[k] = v
	}
	return &c
}

// NewMasterState builds a zeroed MasterState for a fresh request.
func NewMasterState(url, site string, hints Hints) *MasterState {
	return &MasterState{
		URL:         url,
		Site:        site,
		Hints:       hints,
		CurrentUC:   UCNone,
		History:     make([]string, 0, 8),
		RetryCounts: make(map[UseCase]int),
	}
}

// RouteNext is the Supervisor's chosen next step for a MasterState.
type RouteNext string

const (
	NextUC1 RouteNext = "uc1"
	NextUC2 RouteNext = "uc2"
	NextUC3 RouteNext = "uc3"
	NextEnd RouteNext = "end"
)

// OrchestrationResult is the Master Orchestrator's (C13) final output,
// mirroring the external Extract(...) response contract (spec §6.1).
type OrchestrationResult struct {
	OK             bool
	Article        *ExtractedArticle
	Quality        *int
	Method         *ExtractionMethod
	History        []string
	Reason         string
	CostUSD        float64
	SelectorChange bool
}
