// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Policy holds the tunable knobs of the content quality gate and the
// research critique chain.
type Policy struct {
	// MaxResearchVersions caps the research document chain. Output
	// arriving after the cap becomes a plain comment, which is what
	// terminates the author/critic loop.
	MaxResearchVersions int

	// MinDocumentLength is the length below which output must carry
	// structural markdown headers to count as a document.
	MinDocumentLength int

	// BoilerplatePatterns are case-insensitive substrings that mark
	// output as "nothing to show" filler regardless of length.
	BoilerplatePatterns []string
}

// DefaultPolicy returns the stock gate configuration.
func DefaultPolicy() Policy {
	return Policy{
		MaxResearchVersions: 3,
		MinDocumentLength:   400,
		BoilerplatePatterns: []string{
			"i've completed my work",
			"i have completed my work",
			"i've completed the task",
			"nothing to report",
			"no changes were necessary",
			"there is nothing to do",
			"i was unable to produce",
		},
	}
}

// withDefaults fills zero-valued fields from DefaultPolicy.
func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.MaxResearchVersions <= 0 {
		p.MaxResearchVersions = def.MaxResearchVersions
	}
	if p.MinDocumentLength <= 0 {
		p.MinDocumentLength = def.MinDocumentLength
	}
	if p.BoilerplatePatterns == nil {
		p.BoilerplatePatterns = def.BoilerplatePatterns
	}
	return p
}

// screen decides whether output qualifies as an authoritative
// document. A false result carries the reason; the caller downgrades
// the output to a comment. Rejection is deliberate routing, not an
// error.
func (p Policy) screen(output string) (reason string, ok bool) {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return "empty output", false
	}
	lower := strings.ToLower(trimmed)
	for _, pattern := range p.BoilerplatePatterns {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return "matches boilerplate pattern " + strconv.Quote(pattern), false
		}
	}
	if len(trimmed) < p.MinDocumentLength && !hasSectionHeaders(trimmed) {
		return "below minimum length without section headers", false
	}
	return "", true
}

var markdown = goldmark.New()

// hasSectionHeaders reports whether the markdown source contains at
// least one level-2-or-deeper heading.
func hasSectionHeaders(source string) bool {
	src := []byte(source)
	root := markdown.Parser().Parse(text.NewReader(src))
	found := false
	_ = ast.Walk(root, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if heading, isHeading := node.(*ast.Heading); isHeading && heading.Level >= 2 {
			found = true
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return found
}
