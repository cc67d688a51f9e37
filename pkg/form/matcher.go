package form

import (
	"regexp"
	"strings"
)

// noResponse is what GitHub renders for an optional form field left empty.
const noResponse = "_No response_"

// FieldMatcher extracts a scalar value for a field label from an issue body.
// It returns false when its pattern does not apply.
type FieldMatcher func(body, label string) (string, bool)

// SectionMatcher extracts the raw YAML text of a named section.
type SectionMatcher func(body, label string) (string, bool)

// DefaultFieldMatchers is the order in which scalar patterns are tried. The
// more specific shapes (checkbox, code block) come before the plain heading
// shapes that would otherwise swallow them.
var DefaultFieldMatchers = []FieldMatcher{
	MatchCheckbox,
	MatchCodeBlock,
	MatchHeadingBlankLine,
	MatchHeadingNextLine,
	MatchLabelColon,
}

// DefaultSectionMatchers is the order in which YAML section patterns are tried.
var DefaultSectionMatchers = []SectionMatcher{
	MatchFencedYAML,
	MatchFencedPlain,
}

var (
	checkboxPattern  = regexp.MustCompile(`(?m)^\s*-\s*\[[xX]\]\s*(.+?)\s*$`)
	codeBlockPattern = regexp.MustCompile("(?s)^\\s*```[a-zA-Z]*\\s*\\n(.*?)\\n?```")
	fencedYAML       = regexp.MustCompile("(?s)```ya?ml[ \\t]*\\n(.*?)```")
	fencedPlain      = regexp.MustCompile("(?s)```[ \\t]*\\n(.*?)```")
	anyFence         = regexp.MustCompile("(?s)```.*?(```|$)")
)

// sectionBody returns the text between "### <label>" and the next "###"
// heading, or the end of the body.
func sectionBody(body, label string) (string, bool) {
	pattern := regexp.MustCompile(`(?mi)^###[ \t]*` + regexp.QuoteMeta(label) + `[ \t]*$`)
	loc := pattern.FindStringIndex(body)
	if loc == nil {
		return "", false
	}
	rest := body[loc[1]:]
	if next := regexp.MustCompile(`(?m)^###`).FindStringIndex(rest); next != nil {
		rest = rest[:next[0]]
	}
	return rest, true
}

// MatchCheckbox reads the first ticked "- [x] value" line under the heading.
func MatchCheckbox(body, label string) (string, bool) {
	section, ok := sectionBody(body, label)
	if !ok {
		return "", false
	}
	m := checkboxPattern.FindStringSubmatch(section)
	if m == nil {
		return "", false
	}
	return clean(m[1])
}

// MatchCodeBlock reads a fenced block that is the whole content of the heading.
func MatchCodeBlock(body, label string) (string, bool) {
	section, ok := sectionBody(body, label)
	if !ok {
		return "", false
	}
	m := codeBlockPattern.FindStringSubmatch(section)
	if m == nil {
		return "", false
	}
	return clean(m[1])
}

// MatchHeadingBlankLine reads "### label\n\nvalue", the standard issue-form rendering.
func MatchHeadingBlankLine(body, label string) (string, bool) {
	section, ok := sectionBody(body, label)
	if !ok || !strings.HasPrefix(strings.ReplaceAll(section, "\r", ""), "\n\n") {
		return "", false
	}
	return clean(section)
}

// MatchHeadingNextLine reads "### label\nvalue".
func MatchHeadingNextLine(body, label string) (string, bool) {
	section, ok := sectionBody(body, label)
	if !ok {
		return "", false
	}
	return clean(section)
}

// MatchLabelColon reads "label: value" on a line of its own. Lines inside
// fenced blocks belong to a YAML section and are never read.
func MatchLabelColon(body, label string) (string, bool) {
	pattern := regexp.MustCompile(`(?mi)^[ \t]*` + regexp.QuoteMeta(label) + `[ \t]*:[ \t]*(.+?)[ \t]*$`)
	m := pattern.FindStringSubmatch(anyFence.ReplaceAllString(body, ""))
	if m == nil {
		return "", false
	}
	return clean(m[1])
}

// MatchFencedYAML reads a ```yaml (or ```yml) block under the heading.
func MatchFencedYAML(body, label string) (string, bool) {
	return fencedUnder(body, label, fencedYAML)
}

// MatchFencedPlain reads an untagged ``` block under the heading.
func MatchFencedPlain(body, label string) (string, bool) {
	return fencedUnder(body, label, fencedPlain)
}

func fencedUnder(body, label string, pattern *regexp.Regexp) (string, bool) {
	section, ok := sectionBody(body, label)
	if !ok {
		return "", false
	}
	m := pattern.FindStringSubmatch(section)
	if m == nil {
		return "", false
	}
	if strings.TrimSpace(m[1]) == "" {
		return "", false
	}
	return m[1], true
}

func clean(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" || v == noResponse {
		return "", false
	}
	return v, true
}
