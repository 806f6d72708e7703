// Package syntax decides whether a Markdown document only uses constructs
// the comment view can render faithfully.
package syntax

import (
	"regexp"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Reason names one unsupported construct.
type Reason string

const (
	ReasonFrontmatter Reason = "frontmatter"
	ReasonDirectives  Reason = "directives"
	ReasonGFMTable    Reason = "gfm_table"
	ReasonMDX         Reason = "mdx_or_embedded_jsx"
)

// Result is the verdict for one document. Supported is true iff Reasons is empty.
type Result struct {
	Supported bool     `json:"supported"`
	Reasons   []Reason `json:"reasons"`
}

var (
	directiveLine  = regexp.MustCompile(`(?m)^:{2,}[A-Za-z]`)
	esmLine        = regexp.MustCompile(`(?m)^(?:import\s+(?:['"]|.+\s+from\s+['"])|export\s+(?:default|const|let|var|function|class|async|\{))`)
	expressionLine = regexp.MustCompile(`(?m)^[ \t]*\{[^\n]*\}[ \t]*$`)
	dividerCell    = regexp.MustCompile(`^:?-+:?$`)
	frontmatterKey = regexp.MustCompile(`^[A-Za-z0-9_-]+:(?:\s|$)`)
)

var (
	parser     goldmark.Markdown
	parserOnce sync.Once
)

func getParser() goldmark.Markdown {
	parserOnce.Do(func() {
		parser = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return parser
}

// Detect classifies markdown. Code (fenced blocks, indented blocks and inline
// code spans) is ignored, so a rule never fires on text shown verbatim.
func Detect(markdown string) Result {
	source := []byte(markdown)
	doc := getParser().Parser().Parse(text.NewReader(source))

	nodes := scan(doc, source)
	visible := string(nodes.blanked)

	var reasons []Reason
	add := func(r Reason) {
		for _, have := range reasons {
			if have == r {
				return
			}
		}
		reasons = append(reasons, r)
	}

	if hasFrontmatter(visible) {
		add(ReasonFrontmatter)
	}
	if directiveLine.MatchString(visible) {
		add(ReasonDirectives)
	}
	if nodes.table || hasDividerRow(visible) {
		add(ReasonGFMTable)
	}
	if nodes.html || esmLine.MatchString(visible) || expressionLine.MatchString(visible) {
		add(ReasonMDX)
	}

	if reasons == nil {
		reasons = []Reason{}
	}
	return Result{Supported: len(reasons) == 0, Reasons: reasons}
}

type scanResult struct {
	blanked []byte
	table   bool
	html    bool
}

// scan records the node kinds the rules care about and returns a copy of
// source with every code region replaced by spaces. Newlines are kept so
// line anchored rules still see the same lines.
func scan(doc ast.Node, source []byte) scanResult {
	res := scanResult{blanked: append([]byte(nil), source...)}

	blank := func(seg text.Segment) {
		for i := seg.Start; i < seg.Stop && i < len(res.blanked); i++ {
			if res.blanked[i] != '\n' {
				res.blanked[i] = ' '
			}
		}
	}
	blankLines := func(lines *text.Segments) {
		for i := 0; i < lines.Len(); i++ {
			blank(lines.At(i))
		}
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindFencedCodeBlock, ast.KindCodeBlock:
			blankLines(n.Lines())
			return ast.WalkSkipChildren, nil
		case ast.KindCodeSpan:
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					blank(t.Segment)
				}
			}
			return ast.WalkSkipChildren, nil
		case ast.KindHTMLBlock, ast.KindRawHTML:
			res.html = true
		case extast.KindTable:
			res.table = true
		}
		return ast.WalkContinue, nil
	})

	return res
}

// hasFrontmatter reports a leading "---" block closed by "---" or "...".
// A block spanning blank lines needs at least one "key:" line, otherwise two
// thematic breaks around a paragraph would count.
func hasFrontmatter(s string) bool {
	s = strings.TrimPrefix(s, "\ufeff")
	lines := strings.Split(s, "\n")
	if len(lines) < 2 || strings.TrimRight(lines[0], " \t\r") != "---" {
		return false
	}
	blank, keyed := false, false
	for _, line := range lines[1:] {
		trimmed := strings.TrimRight(line, " \t\r")
		switch {
		case trimmed == "---" || trimmed == "...":
			return keyed || !blank
		case trimmed == "":
			blank = true
		case frontmatterKey.MatchString(trimmed):
			keyed = true
		}
	}
	return false
}

// hasDividerRow finds a table delimiter row such as "| --- | :-: |".
// A bare "---" is a thematic break, so at least one pipe is required.
func hasDividerRow(s string) bool {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, "|") || !strings.Contains(line, "-") {
			continue
		}
		inner := strings.TrimSuffix(strings.TrimPrefix(line, "|"), "|")
		ok := true
		for _, cell := range strings.Split(inner, "|") {
			if !dividerCell.MatchString(strings.TrimSpace(cell)) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}
