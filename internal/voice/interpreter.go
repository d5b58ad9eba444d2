// Package voice turns recognized utterances into typed domain commands.
// The interpreter is a pure function over a static pattern set; same
// transcript in, same command out.
package voice

import (
	"strings"
	"unicode/utf8"
)

// CommandKind identifies what a recognized utterance asks for.
type CommandKind string

const (
	KindStartTask    CommandKind = "start_task"
	KindCompleteTask CommandKind = "complete_task"
	KindAppendNote   CommandKind = "append_note"
	KindChangeStatus CommandKind = "change_status"
	KindReportIssue  CommandKind = "report_issue"
	KindUnrecognized CommandKind = "unrecognized"
)

// kindOrder is the declaration order used to break confidence ties.
var kindOrder = []CommandKind{
	KindStartTask,
	KindCompleteTask,
	KindAppendNote,
	KindChangeStatus,
	KindReportIssue,
}

// Severity levels extracted from issue reports.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Command is the typed result of interpreting a transcript.
type Command struct {
	Kind       CommandKind
	Confidence float64
	Transcript string            // lowercased transcript the command was derived from
	Params     map[string]string // kind-specific extracted parameters
}

// Recognized reports whether the utterance mapped to a command.
func (c Command) Recognized() bool {
	return c.Kind != KindUnrecognized
}

// Pattern is one phrase that triggers a command kind.
type Pattern struct {
	Kind   CommandKind
	Phrase string // lowercase, matched as a substring
}

// defaultPatterns is the built-in phrase set. Phrases are French because
// the field workforce this ships to speaks French; extra phrases merge in
// from configuration.
var defaultPatterns = []Pattern{
	{KindStartTask, "commencer la tâche"},
	{KindStartTask, "démarrer l'intervention"},
	{KindStartTask, "commencer l'intervention"},
	{KindCompleteTask, "terminer la tâche"},
	{KindCompleteTask, "intervention terminée"},
	{KindCompleteTask, "travail terminé"},
	{KindAppendNote, "ajouter une note"},
	{KindAppendNote, "prendre note"},
	{KindAppendNote, "ajouter une observation"},
	{KindChangeStatus, "changer le statut"},
	{KindChangeStatus, "mettre en pause"},
	{KindReportIssue, "signaler un problème"},
	{KindReportIssue, "signaler une anomalie"},
	{KindReportIssue, "problème détecté"},
}

// defaultThreshold filters out weak matches on long rambling transcripts.
const defaultThreshold = 0.2

// noteMarkers delimit where free-form note content starts in a transcript.
var noteMarkers = []string{"note", "observation", "commentaire"}

var severityHigh = []string{"urgent", "critique", "danger"}
var severityLow = []string{"mineur", "léger"}

// Interpreter maps transcripts to commands. It holds no mutable state and
// is safe for concurrent use.
type Interpreter struct {
	patterns   []Pattern
	thresholds map[CommandKind]float64
}

// NewInterpreter builds an interpreter from the built-in pattern set,
// per-kind threshold overrides and extra patterns.
func NewInterpreter(thresholds map[string]float64, extra []Pattern) *Interpreter {
	th := make(map[CommandKind]float64, len(kindOrder))
	for _, kind := range kindOrder {
		th[kind] = defaultThreshold
	}
	for kind, v := range thresholds {
		th[CommandKind(kind)] = v
	}

	patterns := make([]Pattern, 0, len(defaultPatterns)+len(extra))
	patterns = append(patterns, defaultPatterns...)
	for _, p := range extra {
		patterns = append(patterns, Pattern{Kind: p.Kind, Phrase: strings.ToLower(p.Phrase)})
	}

	return &Interpreter{patterns: patterns, thresholds: th}
}

// Interpret maps a transcript to a command. The surviving match with the
// highest confidence wins; ties go to the kind declared first. If nothing
// survives the thresholds the command is Unrecognized.
func (i *Interpreter) Interpret(transcript string) Command {
	lower := strings.ToLower(strings.TrimSpace(transcript))
	if lower == "" {
		return Command{Kind: KindUnrecognized, Transcript: lower}
	}

	transcriptLen := utf8.RuneCountInString(lower)

	best := Command{Kind: KindUnrecognized, Transcript: lower}
	for _, kind := range kindOrder {
		for _, p := range i.patterns {
			if p.Kind != kind || !strings.Contains(lower, p.Phrase) {
				continue
			}
			confidence := clamp(float64(utf8.RuneCountInString(p.Phrase)) / float64(transcriptLen))
			if confidence < i.thresholds[kind] {
				continue
			}
			// Strictly greater keeps the earliest declared kind on ties.
			if confidence > best.Confidence {
				best = Command{Kind: kind, Confidence: confidence, Transcript: lower}
			}
		}
	}

	if best.Kind == KindUnrecognized {
		return best
	}
	best.Params = extractParams(best.Kind, lower)
	return best
}

// extractParams pulls kind-specific parameters out of the transcript.
func extractParams(kind CommandKind, transcript string) map[string]string {
	switch kind {
	case KindAppendNote:
		return map[string]string{"note_content": noteContent(transcript)}
	case KindReportIssue:
		return map[string]string{
			"description": transcript,
			"severity":    issueSeverity(transcript),
		}
	default:
		return nil
	}
}

// noteContent is the substring following the first note marker, or the
// full transcript when no marker is present.
func noteContent(transcript string) string {
	firstIdx := -1
	markerLen := 0
	for _, marker := range noteMarkers {
		if idx := strings.Index(transcript, marker); idx >= 0 && (firstIdx < 0 || idx < firstIdx) {
			firstIdx = idx
			markerLen = len(marker)
		}
	}
	if firstIdx < 0 {
		return transcript
	}
	return strings.TrimLeft(transcript[firstIdx+markerLen:], " :,.")
}

func issueSeverity(transcript string) string {
	for _, keyword := range severityHigh {
		if strings.Contains(transcript, keyword) {
			return SeverityHigh
		}
	}
	for _, keyword := range severityLow {
		if strings.Contains(transcript, keyword) {
			return SeverityLow
		}
	}
	return SeverityMedium
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
