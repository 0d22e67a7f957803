// Package domparse turns raw HTML into a parsed, queryable DOM via
// goquery, the same library the teacher uses throughout
// internal/services/crawler for traversal.
package domparse

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// GoqueryParser implements orchestrator.DOMParser.
type GoqueryParser struct{}

// Parse builds a *goquery.Document from raw HTML.
func (GoqueryParser) Parse(rawHTML string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}
