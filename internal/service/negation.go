package service

import "strings"

// antonymPairs are the lexical cues the negation check looks for. Each
// pair reads (assertion token, negated counterpart); matching is
// symmetric.
var antonymPairs = [][2]string{
	{"always", "never"},
	{"must", "must not"},
	{"should", "should not"},
	{"do", "don't"},
	{"use", "avoid"},
	{"use", "never use"},
	{"enable", "disable"},
	{"allow", "forbid"},
	{"required", "forbidden"},
	{"prefer", "avoid"},
}

// stopTokens are dropped before comparing subjects so that polarity words
// don't count toward subject overlap.
var stopTokens = map[string]struct{}{
	"always": {}, "never": {}, "must": {}, "should": {}, "not": {},
	"don't": {}, "dont": {}, "do": {}, "use": {}, "avoid": {},
	"enable": {}, "disable": {}, "allow": {}, "forbid": {},
	"required": {}, "forbidden": {}, "prefer": {},
	"a": {}, "an": {}, "the": {}, "to": {}, "of": {}, "in": {}, "for": {},
	"we": {}, "you": {}, "it": {},
}

// summariesContradict fires when two summaries assert opposite polarity
// about the same subject: one side carries an assertion cue, the other its
// lexical negation, and the remaining tokens overlap enough to be the same
// claim.
func summariesContradict(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)

	polarized := false
	for _, pair := range antonymPairs {
		if (containsToken(la, pair[0]) && strings.Contains(lb, pair[1])) ||
			(containsToken(lb, pair[0]) && strings.Contains(la, pair[1])) {
			polarized = true
			break
		}
	}
	if !polarized {
		// "X" vs "not X" with no cue word.
		if containsToken(la, "not") == containsToken(lb, "not") {
			return false
		}
		polarized = true
	}

	return subjectOverlap(la, lb) >= 0.5
}

// subjectOverlap is the Jaccard overlap of the non-polarity tokens.
func subjectOverlap(a, b string) float64 {
	ta := subjectTokens(a)
	tb := subjectTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared, union := 0, len(ta)
	for tok := range tb {
		if _, ok := ta[tok]; ok {
			shared++
		} else {
			union++
		}
	}
	return float64(shared) / float64(union)
}

func subjectTokens(s string) map[string]struct{} {
	tokens := map[string]struct{}{}
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == ';' || r == ':' || r == '\t' || r == '\n'
	}) {
		if _, stop := stopTokens[tok]; stop {
			continue
		}
		tokens[tok] = struct{}{}
	}
	return tokens
}

func containsToken(s, tok string) bool {
	for _, f := range strings.Fields(s) {
		if strings.Trim(f, ",.;:") == tok {
			return true
		}
	}
	return false
}
