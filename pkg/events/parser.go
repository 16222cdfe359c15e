package events

import (
	"bufio"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Markers recognized in a job output artifact.
const (
	completedMarker = "RUN COMPLETED"
	summaryStart    = "<EVENT_SUMMARY>"
	summaryEnd      = "</EVENT_SUMMARY>"
)

// Parser extracts a Report from a job output artifact.
//
// The artifact is line oriented: a line starting with "ERROR:", "BUG:",
// "WARNING:" or "COMMENT:" records one event, and a line containing
// "RUN COMPLETED" marks successful completion. When the artifact carries an
// <EVENT_SUMMARY> YAML section the section is authoritative and line
// scanning is skipped.
type Parser struct{}

// summaryDoc is the YAML body of an <EVENT_SUMMARY> section.
type summaryDoc struct {
	RunCompleted bool     `yaml:"run_completed"`
	Errors       []string `yaml:"errors"`
	Bugs         []string `yaml:"bugs"`
	Warnings     []string `yaml:"warnings"`
	Comments     []string `yaml:"comments"`
}

// Parse reads the output artifact at path and classifies it. A missing or
// empty artifact is a *ParseError: the caller must decide what an absent
// outcome means, the classifier never guesses.
func (Parser) Parse(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Reason: "cannot read output artifact", Err: err}
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, &ParseError{Path: path, Reason: "output artifact is empty"}
	}

	if strings.Contains(string(data), summaryStart) {
		return parseSummary(path, string(data))
	}
	return scanLines(string(data)), nil
}

func parseSummary(path, text string) (*Report, error) {
	start := strings.Index(text, summaryStart)
	end := strings.Index(text, summaryEnd)
	if end < start {
		return nil, &ParseError{Path: path, Reason: "unterminated event summary section"}
	}

	body := text[start+len(summaryStart) : end]
	var doc summaryDoc
	if err := yaml.Unmarshal([]byte(body), &doc); err != nil {
		return nil, &ParseError{Path: path, Reason: "malformed event summary", Err: err}
	}

	report := &Report{RunCompleted: doc.RunCompleted}
	for _, m := range doc.Errors {
		report.Errors = append(report.Errors, Event{Kind: KindError, Message: m})
	}
	for _, m := range doc.Bugs {
		report.Bugs = append(report.Bugs, Event{Kind: KindBug, Message: m})
	}
	for _, m := range doc.Warnings {
		report.Warnings = append(report.Warnings, Event{Kind: KindWarning, Message: m})
	}
	for _, m := range doc.Comments {
		report.Comments = append(report.Comments, Event{Kind: KindComment, Message: m})
	}
	return report, nil
}

func scanLines(text string) *Report {
	report := &Report{}

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case strings.Contains(line, completedMarker):
			report.RunCompleted = true
		case strings.HasPrefix(line, "ERROR:"):
			report.Errors = append(report.Errors, event(KindError, line, "ERROR:"))
		case strings.HasPrefix(line, "BUG:"):
			report.Bugs = append(report.Bugs, event(KindBug, line, "BUG:"))
		case strings.HasPrefix(line, "WARNING:"):
			report.Warnings = append(report.Warnings, event(KindWarning, line, "WARNING:"))
		case strings.HasPrefix(line, "COMMENT:"):
			report.Comments = append(report.Comments, event(KindComment, line, "COMMENT:"))
		}
	}

	return report
}

func event(kind, line, prefix string) Event {
	return Event{Kind: kind, Message: strings.TrimSpace(strings.TrimPrefix(line, prefix))}
}
