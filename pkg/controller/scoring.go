package controller

import (
	"strings"
	"unicode"

	"github.com/solariscontrol/solaris/pkg/types"
)

const (
	preferenceWeight = 3
	patternWeight    = 1
	emphasisBonus    = 1
)

var (
	// emphasisWords anywhere in a clause strengthen the switches it mentions.
	emphasisWords = map[string]bool{
		"essential":  true,
		"critical":   true,
		"important":  true,
		"priority":   true,
		"prioritize": true,
		"prioritise": true,
		"keep":       true,
		"always":     true,
		"must":       true,
		"need":       true,
		"needs":      true,
		"required":   true,
	}
	// an odd number of negationWords in a clause turns a mention into a
	// request to keep the switch off
	negationWords = map[string]bool{
		"off":      true,
		"avoid":    true,
		"never":    true,
		"disable":  true,
		"disabled": true,
		"not":      true,
		"don't":    true,
		"dont":     true,
		"without":  true,
		"skip":     true,
		"except":   true,
	}
	// clauseBreakWords start an unrelated clause so that "keep switch 1 on
	// but switch 3 off" scores the two switches independently
	clauseBreakWords = map[string]bool{
		"but":   true,
		"while": true,
		"then":  true,
	}
	// listJoinWords separate items of one instruction: "avoid switch 1 and
	// switch 2" keeps both switches off
	listJoinWords = map[string]bool{
		"and": true,
		"or":  true,
	}
	// directiveWords give a list item its own instruction instead of the one
	// before it
	directiveWords = map[string]bool{
		"on":     true,
		"turn":   true,
		"use":    true,
		"run":    true,
		"leave":  true,
		"enable": true,
		"start":  true,
		"allow":  true,
		"want":   true,
		"prefer": true,
	}
)

// clause is a run of lowercase tokens with no punctuation or conjunction
// between them.
type clause []string

func (c clause) String() string {
	return strings.Join(c, " ")
}

// span is a clause plus whether it continues a list started by the clause
// before it.
type span struct {
	words    clause
	listItem bool
}

// splitSpans lowercases text and breaks it into clauses of word tokens.
// Apostrophes are kept inside words so "don't" stays one token.
func splitSpans(text string) []span {
	var (
		spans    []span
		current  clause
		listNext bool
		word     strings.Builder
	)
	// endClause closes the current clause; list marks the next one as an
	// item of the same list
	endClause := func(list bool) {
		if len(current) > 0 {
			spans = append(spans, span{words: current, listItem: listNext})
			listNext = list
		} else if !list {
			listNext = false
		}
		current = nil
	}
	flushWord := func() {
		if word.Len() == 0 {
			return
		}
		w := strings.Trim(word.String(), "'")
		word.Reset()
		switch {
		case w == "":
		case clauseBreakWords[w]:
			endClause(false)
		case listJoinWords[w]:
			endClause(true)
		default:
			current = append(current, w)
		}
	}

	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '’':
			if r == '’' {
				r = '\''
			}
			word.WriteRune(r)
		case r == ',':
			flushWord()
			endClause(true)
		case strings.ContainsRune(".;:!?\n()", r):
			flushWord()
			endClause(false)
		default:
			flushWord()
		}
	}
	flushWord()
	endClause(false)
	return spans
}

// splitClauses returns only the clause words of splitSpans.
func splitClauses(text string) []clause {
	var out []clause
	for _, sp := range splitSpans(text) {
		out = append(out, sp.words)
	}
	return out
}

// tokens splits a name or keyword into the token sequence it must match.
func tokens(s string) []string {
	var out []string
	for _, c := range splitClauses(s) {
		out = append(out, c...)
	}
	return out
}

// switchTerms returns the token sequences that refer to a switch: its name,
// its name without spaces ("switch1") and each keyword.
func switchTerms(sw types.Switch) [][]string {
	var terms [][]string
	if name := tokens(sw.Name); len(name) > 0 {
		terms = append(terms, name)
		if len(name) > 1 {
			terms = append(terms, []string{strings.Join(name, "")})
		}
	}
	for _, k := range sw.Keywords {
		if kt := tokens(k); len(kt) > 0 {
			terms = append(terms, kt)
		}
	}
	return terms
}

// contains reports whether seq appears contiguously in c.
func (c clause) contains(seq []string) bool {
	if len(seq) == 0 || len(seq) > len(c) {
		return false
	}
outer:
	for i := 0; i+len(seq) <= len(c); i++ {
		for j, s := range seq {
			if c[i+j] != s {
				continue outer
			}
		}
		return true
	}
	return false
}

func (c clause) negated() bool {
	n := 0
	for _, w := range c {
		if negationWords[w] {
			n++
		}
	}
	return n%2 == 1
}

func (c clause) emphasised() bool {
	for _, w := range c {
		if emphasisWords[w] {
			return true
		}
	}
	return false
}

// bare reports whether c carries no instruction of its own.
func (c clause) bare() bool {
	for _, w := range c {
		if negationWords[w] || emphasisWords[w] || directiveWords[w] {
			return false
		}
	}
	return true
}

// evidence is one clause that mentioned a switch.
type evidence struct {
	source string // "preference" or "usage pattern"
	text   string
	delta  int
}

// switchScore is the relevance of a single switch to the free-form inputs.
type switchScore struct {
	id       types.SwitchID
	score    int
	evidence []evidence
}

// scoreSwitches scores every switch against the preference and usage
// pattern texts. The result is indexed by switch position.
func scoreSwitches(terms [types.NumSwitches][][]string, preferenceText, usagePatternText string) [types.NumSwitches]switchScore {
	var scores [types.NumSwitches]switchScore
	for _, id := range types.SwitchIDs {
		scores[id.Index()].id = id
	}

	inputs := []struct {
		source string
		text   string
		weight int
	}{
		{"preference", preferenceText, preferenceWeight},
		{"usage pattern", usagePatternText, patternWeight},
	}
	for _, in := range inputs {
		var negated, emphasised bool
		for _, sp := range splitSpans(in.text) {
			c := sp.words
			// a bare list item repeats the instruction of the item before it
			if !sp.listItem || !c.bare() {
				negated, emphasised = c.negated(), c.emphasised()
			}
			for i := range scores {
				if !mentions(c, terms[i]) {
					continue
				}
				delta := in.weight
				if emphasised {
					delta += emphasisBonus
				}
				if negated {
					delta = -delta
				}
				scores[i].score += delta
				scores[i].evidence = append(scores[i].evidence, evidence{
					source: in.source,
					text:   c.String(),
					delta:  delta,
				})
			}
		}
	}
	return scores
}

func mentions(c clause, terms [][]string) bool {
	for _, t := range terms {
		if c.contains(t) {
			return true
		}
	}
	return false
}
