// Package summary derives the sidebar summary of a conversation and parses
// stored summaries back into their sections.
package summary

import (
	"regexp"
	"strings"
)

const (
	LabelDiscussions = "Discussions till now:"
	LabelLastTask    = "Last task or action item assigned:"
	LabelContext     = "Important context for next interactions:"
)

var (
	blankLine      = regexp.MustCompile(`\n[ \t\r]*\n`)
	bulletMarkers  = []string{"-", "*", "•"}
	sectionBuckets = []string{LabelDiscussions, LabelLastTask, LabelContext}
)

// Sections is a parsed summary. Buckets are never nil.
type Sections struct {
	Discussions []string `json:"discussions"`
	LastTask    []string `json:"lastTask"`
	Context     []string `json:"context"`
}

// Project parses a stored summary. Sections are separated by blank lines and
// start with their label; only bullet lines are kept. Unlabeled sections
// are dropped.
func Project(text string) Sections {
	out := Sections{
		Discussions: []string{},
		LastTask:    []string{},
		Context:     []string{},
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, section := range blankLine.Split(text, -1) {
		section = strings.TrimSpace(section)
		label, ok := labelOf(section)
		if !ok {
			continue
		}
		items := bullets(strings.TrimPrefix(section, label))

		switch label {
		case LabelDiscussions:
			out.Discussions = append(out.Discussions, items...)
		case LabelLastTask:
			out.LastTask = append(out.LastTask, items...)
		case LabelContext:
			out.Context = append(out.Context, items...)
		}
	}
	return out
}

func labelOf(section string) (string, bool) {
	for _, label := range sectionBuckets {
		if strings.HasPrefix(section, label) {
			return label, true
		}
	}
	return "", false
}

func bullets(body string) []string {
	var items []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		for _, marker := range bulletMarkers {
			if !strings.HasPrefix(line, marker) {
				continue
			}
			if item := strings.TrimSpace(strings.TrimPrefix(line, marker)); item != "" {
				items = append(items, item)
			}
			break
		}
	}
	return items
}

// IsEmpty reports whether no bucket has an item.
func (s Sections) IsEmpty() bool {
	return len(s.Discussions) == 0 && len(s.LastTask) == 0 && len(s.Context) == 0
}
