package racecontrol

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"lapfusion/internal/telemetry"
)

// Kind is the classification of one race control event.
type Kind string

const (
	KindNone      Kind = "none"
	KindSCStart   Kind = "sc_start"
	KindSCEnd     Kind = "sc_end"
	KindVSCStart  Kind = "vsc_start"
	KindVSCEnd    Kind = "vsc_end"
	KindUnmatched Kind = "unmatched"
)

// Classifier maps an event to a Kind.
type Classifier interface {
	Classify(ev telemetry.RaceControlEvent) Kind
}

// KeywordRule matches when the message contains every keyword as whole
// words. Matching is case-insensitive under Unicode case folding.
type KeywordRule struct {
	Keywords []string
	Kind     Kind
}

// RuleClassifier is a table-driven Classifier. Flag codes are consulted
// first, then keyword rules in order. A message that mentions a watched
// subject but matches no rule is KindUnmatched. Build it with
// NewRuleClassifier, which folds every key once.
type RuleClassifier struct {
	flags    map[string]Kind
	rules    []KeywordRule
	subjects []string
}

// DefaultFlags are explicit flag codes. The numeric codes are the timing
// feed's track status values.
func DefaultFlags() map[string]Kind {
	return map[string]Kind{
		"SC_START":  KindSCStart,
		"SC_END":    KindSCEnd,
		"VSC_START": KindVSCStart,
		"VSC_END":   KindVSCEnd,
		"4":         KindSCStart,
		"6":         KindVSCStart,
		"7":         KindVSCEnd,
	}
}

// DefaultRules cover the message formats seen from the timing provider. VSC
// rules come first because their messages also contain "SAFETY CAR".
func DefaultRules() []KeywordRule {
	return []KeywordRule{
		{Keywords: []string{"VIRTUAL SAFETY CAR", "DEPLOYED"}, Kind: KindVSCStart},
		{Keywords: []string{"VIRTUAL SAFETY CAR", "ENDING"}, Kind: KindVSCEnd},
		{Keywords: []string{"VIRTUAL SAFETY CAR", "ENDED"}, Kind: KindVSCEnd},
		{Keywords: []string{"VSC", "DEPLOYED"}, Kind: KindVSCStart},
		{Keywords: []string{"VSC", "ENDING"}, Kind: KindVSCEnd},
		{Keywords: []string{"SAFETY CAR", "DEPLOYED"}, Kind: KindSCStart},
		{Keywords: []string{"SAFETY CAR", "IN THIS LAP"}, Kind: KindSCEnd},
		{Keywords: []string{"SAFETY CAR", "ENDING"}, Kind: KindSCEnd},
		{Keywords: []string{"SAFETY CAR", "RETURNING"}, Kind: KindSCEnd},
		// Informational safety car messages that are not state changes.
		{Keywords: []string{"SAFETY CAR", "THROUGH THE PIT LANE"}, Kind: KindNone},
		{Keywords: []string{"SAFETY CAR", "LAPPED CARS"}, Kind: KindNone},
		{Keywords: []string{"SAFETY CAR", "OVERTAKE"}, Kind: KindNone},
	}
}

// DefaultSubjects are the phrases that make an unclassified message worth
// reporting.
func DefaultSubjects() []string {
	return []string{"SAFETY CAR", "VSC"}
}

// NewRuleClassifier builds a classifier from the default tables plus extra
// rules, which are evaluated before the defaults.
func NewRuleClassifier(extra ...KeywordRule) *RuleClassifier {
	fold := cases.Fold()
	c := &RuleClassifier{
		flags:    make(map[string]Kind),
		rules:    make([]KeywordRule, 0, len(extra)+len(DefaultRules())),
		subjects: normalizeKeywords(fold, DefaultSubjects()),
	}
	for code, kind := range DefaultFlags() {
		c.flags[normalize(fold, code)] = kind
	}
	for _, r := range append(append([]KeywordRule(nil), extra...), DefaultRules()...) {
		c.rules = append(c.rules, KeywordRule{Kind: r.Kind, Keywords: normalizeKeywords(fold, r.Keywords)})
	}
	return c
}

// Classify implements Classifier. A Caser carries state, so each call folds
// with its own.
func (c *RuleClassifier) Classify(ev telemetry.RaceControlEvent) Kind {
	fold := cases.Fold()
	if flag := normalize(fold, ev.Flag); flag != "" {
		if kind, ok := c.flags[flag]; ok {
			return kind
		}
	}
	msg := normalize(fold, ev.Message)
	if msg == "" {
		return KindNone
	}
	for _, rule := range c.rules {
		if len(rule.Keywords) > 0 && containsAllWords(msg, rule.Keywords) {
			return rule.Kind
		}
	}
	for _, subject := range c.subjects {
		if containsWord(msg, subject) {
			return KindUnmatched
		}
	}
	return KindNone
}

// normalize collapses whitespace and case-folds s.
func normalize(fold cases.Caser, s string) string {
	fold.Reset()
	return fold.String(strings.Join(strings.Fields(s), " "))
}

func normalizeKeywords(fold cases.Caser, keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = normalize(fold, kw); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

func containsAllWords(msg string, keywords []string) bool {
	for _, kw := range keywords {
		if !containsWord(msg, kw) {
			return false
		}
	}
	return true
}

// containsWord reports whether phrase occurs in msg with no letter or digit
// directly before or after it.
func containsWord(msg, phrase string) bool {
	for from := 0; from <= len(msg)-len(phrase); {
		idx := strings.Index(msg[from:], phrase)
		if idx < 0 {
			return false
		}
		start := from + idx
		end := start + len(phrase)
		if !wordRuneBefore(msg, start) && !wordRuneAt(msg, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(msg[start:])
		from = start + size
	}
	return false
}

func wordRuneBefore(s string, i int) bool {
	if i == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func wordRuneAt(s string, i int) bool {
	if i >= len(s) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// ParseKind accepts the Kind spellings used in configuration.
func ParseKind(value string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case KindSCStart:
		return KindSCStart, true
	case KindSCEnd:
		return KindSCEnd, true
	case KindVSCStart:
		return KindVSCStart, true
	case KindVSCEnd:
		return KindVSCEnd, true
	case KindNone:
		return KindNone, true
	default:
		return "", false
	}
}
