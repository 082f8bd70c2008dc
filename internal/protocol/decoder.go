// Package protocol decodes the private inline tag protocol embedded in the
// teacher model's streamed text: graded grammar/translation probes and
// free-text correction logs. Decoding is pure and total - no fragment,
// however malformed, raises an error. Malformed fragments are dropped from
// the result but still stripped from the cleaned text whenever they match
// the outer bracket syntax, so protocol never leaks to the learner.
//
// The tag grammar is a fixed wire contract with the upstream text generator
// and must be matched exactly, case-sensitive keywords included:
//
//	[GRAM:wordId|feature|studentAnswer|correctAnswer|verdict]
//	[TRANS:wordId|studentAnswer|correctAnswer|verdict]
//	[ERROR_LOG] type:... student_said:"..." correction:"..." context:"..." [/ERROR_LOG]
//
// Parsing is an explicit scanner rather than a regex so that a field value
// cannot silently shift field boundaries.
package protocol

import (
	"strconv"
	"strings"
)

// Tag markers. The keyword case is part of the wire contract.
const (
	gramOpen      = "[GRAM:"
	transOpen     = "[TRANS:"
	errorLogOpen  = "[ERROR_LOG]"
	errorLogClose = "[/ERROR_LOG]"

	verdictCorrect   = "correct"
	verdictIncorrect = "incorrect"
)

// Kind identifies the protocol fragment shape.
type Kind string

const (
	KindGrammar     Kind = "grammar"
	KindTranslation Kind = "translation"
	KindErrorLog    Kind = "error_log"
)

// Fragment is one decoded protocol fragment. The ingest layer converts
// fragments into observation entities, attaching session id and timestamp;
// the decoder itself knows nothing about sessions or storage.
type Fragment struct {
	Kind Kind

	// WordID is the vocabulary item reference for grammar and translation
	// fragments. Always non-negative: fragments whose id field is not a
	// plain digit run (a known upstream failure mode emits the literal
	// "undefined") are rejected outright.
	WordID int

	// Feature is the probed grammar feature (grammar fragments only).
	Feature string

	StudentAnswer string
	CorrectAnswer string
	IsCorrect     bool

	// ErrorType and Context carry the correction-log fields.
	ErrorType string
	Context   string
}

// Decode scans text for protocol fragments. It returns the accepted
// fragments in order of appearance, the display text with every matched tag
// stripped, and the number of tag-shaped spans that were dropped as
// malformed. Text without any tag-shaped content comes back unchanged.
func Decode(text string) ([]Fragment, string, int) {
	var (
		frags   []Fragment
		dropped int
		b       strings.Builder
	)
	b.Grow(len(text))

	i := 0
	for i < len(text) {
		if text[i] != '[' {
			b.WriteByte(text[i])
			i++
			continue
		}

		rest := text[i:]
		switch {
		case strings.HasPrefix(rest, gramOpen):
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				// Unterminated tag: not a match, keep the text as-is.
				b.WriteString(rest)
				return frags, b.String(), dropped
			}
			body := rest[len(gramOpen):end]
			if frag, ok := parseGrammar(body); ok {
				frags = append(frags, frag)
			} else {
				dropped++
			}
			i += end + 1
			i = skipSpaceRun(text, i)

		case strings.HasPrefix(rest, transOpen):
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				b.WriteString(rest)
				return frags, b.String(), dropped
			}
			body := rest[len(transOpen):end]
			if frag, ok := parseTranslation(body); ok {
				frags = append(frags, frag)
			} else {
				dropped++
			}
			i += end + 1
			i = skipSpaceRun(text, i)

		case strings.HasPrefix(rest, errorLogOpen):
			close := strings.Index(rest, errorLogClose)
			if close < 0 {
				// No closing marker: leave the text untouched rather than
				// eating the remainder of the message.
				b.WriteString(rest)
				return frags, b.String(), dropped
			}
			body := rest[len(errorLogOpen):close]
			frags = append(frags, parseErrorLog(body))
			i += close + len(errorLogClose)
			i = skipSpaceRun(text, i)

		default:
			b.WriteByte('[')
			i++
		}
	}

	return frags, b.String(), dropped
}

// parseGrammar parses "wordId|feature|studentAnswer|correctAnswer|verdict".
func parseGrammar(body string) (Fragment, bool) {
	fields := strings.Split(body, "|")
	if len(fields) != 5 {
		return Fragment{}, false
	}
	wordID, ok := parseWordID(fields[0])
	if !ok {
		return Fragment{}, false
	}
	verdict, ok := parseVerdict(fields[4])
	if !ok {
		return Fragment{}, false
	}
	return Fragment{
		Kind:          KindGrammar,
		WordID:        wordID,
		Feature:       fields[1],
		StudentAnswer: fields[2],
		CorrectAnswer: fields[3],
		IsCorrect:     verdict,
	}, true
}

// parseTranslation parses "wordId|studentAnswer|correctAnswer|verdict".
func parseTranslation(body string) (Fragment, bool) {
	fields := strings.Split(body, "|")
	if len(fields) != 4 {
		return Fragment{}, false
	}
	wordID, ok := parseWordID(fields[0])
	if !ok {
		return Fragment{}, false
	}
	verdict, ok := parseVerdict(fields[3])
	if !ok {
		return Fragment{}, false
	}
	return Fragment{
		Kind:          KindTranslation,
		WordID:        wordID,
		StudentAnswer: fields[1],
		CorrectAnswer: fields[2],
		IsCorrect:     verdict,
	}, true
}

// parseErrorLog parses the key:value-per-line correction-log body.
// Absent fields default to empty strings; the block is accepted regardless
// of how many fields parsed.
func parseErrorLog(body string) Fragment {
	frag := Fragment{Kind: KindErrorLog}
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "type":
			frag.ErrorType = value
		case "student_said":
			frag.StudentAnswer = unquote(value)
		case "correction":
			frag.CorrectAnswer = unquote(value)
		case "context":
			frag.Context = unquote(value)
		}
	}
	return frag
}

// parseWordID accepts one or more ASCII digits and nothing else.
// The correctness gate: ids like "undefined" must reject the whole tag
// rather than turn into a placeholder value.
func parseWordID(field string) (int, bool) {
	if field == "" {
		return 0, false
	}
	for i := 0; i < len(field); i++ {
		if field[i] < '0' || field[i] > '9' {
			return 0, false
		}
	}
	id, err := strconv.Atoi(field)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

// parseVerdict accepts exactly "correct" or "incorrect".
func parseVerdict(field string) (bool, bool) {
	switch field {
	case verdictCorrect:
		return true, true
	case verdictIncorrect:
		return false, true
	}
	return false, false
}

// unquote strips one pair of surrounding double quotes, if present.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// skipSpaceRun consumes the single run of whitespace following a stripped
// tag so the surrounding prose keeps its original spacing.
func skipSpaceRun(text string, i int) int {
	for i < len(text) {
		switch text[i] {
		case ' ', '\t', '\n', '\r':
			i++
		default:
			return i
		}
	}
	return i
}
