// Package quality implements the Quality Scorer (C4, spec §4.1): a pure,
// rule-based 5W1H scoring function turning an extracted article into a
// QualityReport. Never raises; ambiguous dates that match year/month/day
// heuristics score full credit, otherwise zero (spec §4.1).
package quality

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/lorekeeper/extractor/internal/core/dateparse"
	"github.com/lorekeeper/extractor/internal/core/types"
)

// Score implements score(article, raw_url) -> QualityReport (spec §4.1,
// scoring table in §3): title 20 (≥10 chars full, 5-9 half), body 60 (≥100
// full, 50-99 0.6x, <50 0.2x), date 10 (recognized), url 10 (absolute
// HTTP(S)). Optional author/category contribute ≤10 total on top.
func Score(article types.ExtractedArticle, rawURL string) types.QualityReport {
	var b types.QualityBreakdown

	b.Title = titleScore(article.Title)
	b.Body = bodyScore(article.Body)
	b.Date = dateScore(article.Date)
	b.URL = urlScore(rawURL)

	total := int(b.Title + b.Body + b.Date + b.URL + b.Author + b.Category)
	if total > 100 {
		total = 100
	}

	return types.QualityReport{
		Score:     total,
		Breakdown: b,
		Reason:    reasonFor(total, b),
	}
}

func titleScore(title string) float64 {
	n := len(strings.TrimSpace(title))
	switch {
	case n >= 10:
		return 20
	case n >= 5:
		return 10
	default:
		return 0
	}
}

func bodyScore(body string) float64 {
	n := len(strings.TrimSpace(body))
	switch {
	case n >= 100:
		return 60
	case n >= 50:
		return 60 * 0.6
	case n > 0:
		return 60 * 0.2
	default:
		return 0
	}
}

func dateScore(date string) float64 {
	if dateparse.IsRecognizable(date) {
		return 10
	}
	return 0
}

func urlScore(raw string) float64 {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return 0
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return 0
	}
	return 10
}

// reasonFor names the dominant failing criterion when score < 80 (spec §4.1).
func reasonFor(total int, b types.QualityBreakdown) string {
	if total >= 80 {
		return "ok"
	}

	worst := "title"
	worstDeficit := 20 - b.Title
	if d := 60 - b.Body; d > worstDeficit {
		worst, worstDeficit = "body", d
	}
	if d := 10 - b.Date; d > worstDeficit {
		worst, worstDeficit = "date", d
	}
	if d := 10 - b.URL; d > worstDeficit {
		worst, worstDeficit = "url", d
	}

	return fmt.Sprintf("insufficient %s", worst)
}
