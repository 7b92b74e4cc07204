// Package term decodes signature term strings into their experiment fields.
//
// A term has the grammar
//
//	batch "_" cellLine "_" timepoint "_" batch2 "_" perturbation [" " direction] ["_" concentration [" " unit...]]
//
// where direction is "up" or "down" and may also trail the whole term. Fields
// are positional. A term with fewer than five segments still yields every
// field it can read; the rest are set to Unparsed and Parse reports a
// *ParseError.
package term

import (
	"fmt"
	"regexp"
	"strings"
)

// Unparsed marks a field that could not be read from the term.
const Unparsed = "N/A"

// RequiredSegments is the number of underscore-delimited segments a term
// must carry to be fully parsed.
const RequiredSegments = 5

// Direction of a signature relative to its perturbation.
type Direction string

const (
	DirectionNone Direction = ""
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

var directionPattern = regexp.MustCompile(`(?i) (up|down)(_| |$)`)

// Term holds the fields decoded from one term string.
type Term struct {
	Raw            string
	Base           string // Raw without its direction token
	PerturbationID string
	CellLine       string
	Timepoint      string
	Batch          string
	Perturbation   string
	Concentration  string
	Direction      Direction
}

// ParseError reports a term with too few segments.
type ParseError struct {
	Term     string
	Segments int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("term %q: %d segments, want at least %d", e.Term, e.Segments, RequiredSegments)
}

// Parse decodes s. The returned Term is always usable; err is non-nil when
// one or more required fields fell back to Unparsed.
func Parse(s string) (Term, error) {
	t := Term{Raw: s}

	base := s
	if loc := directionPattern.FindStringSubmatchIndex(s); loc != nil {
		t.Direction = Direction(strings.ToLower(s[loc[2]:loc[3]]))
		base = s[:loc[0]] + s[loc[3]:]
		base = strings.TrimRight(base, " ")
	}
	t.Base = base

	segments := strings.Split(base, "_")
	if base == "" {
		segments = nil
	}
	field := func(i int) string {
		if i < len(segments) && segments[i] != "" {
			return segments[i]
		}
		return Unparsed
	}

	t.PerturbationID = field(0)
	t.CellLine = field(1)
	t.Timepoint = field(2)
	t.Batch = field(3)
	t.Perturbation = Relabel(field(4))

	t.Concentration = Unparsed
	if len(segments) > 5 {
		if c, _, _ := strings.Cut(segments[5], " "); c != "" {
			t.Concentration = c
		}
	}

	if len(segments) < RequiredSegments {
		return t, &ParseError{Term: s, Segments: len(segments)}
	}
	return t, nil
}

// Relabel rewrites a two-token perturbation "GENE guide" as "GENE KO", the
// CRISPR knockout convention. Anything else is returned unchanged.
func Relabel(perturbation string) string {
	tokens := strings.Split(perturbation, " ")
	if len(tokens) == 2 {
		return tokens[0] + " KO"
	}
	return perturbation
}

// HasDirection reports whether term carries the given direction token. It
// reads the token the same way Parse does.
func HasDirection(term string, d Direction) bool {
	return d != DirectionNone && directionOf(term) == d
}

func directionOf(s string) Direction {
	m := directionPattern.FindStringSubmatch(s)
	if m == nil {
		return DirectionNone
	}
	return Direction(strings.ToLower(m[1]))
}
