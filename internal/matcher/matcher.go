// Package matcher decides whether a message text satisfies a rule text.
// Implementations are pure and safe for concurrent use.
package matcher

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// Matcher evaluates one rule against one message.
// An error means the rule could not be evaluated; callers treat it as no match.
type Matcher interface {
	Matches(ruleText, messageText string) (bool, error)
}

// Func adapts a plain function to Matcher.
type Func func(ruleText, messageText string) (bool, error)

func (f Func) Matches(ruleText, messageText string) (bool, error) {
	return f(ruleText, messageText)
}

// ErrEmptyRule is returned for a rule that has nothing to match on.
var ErrEmptyRule = errors.New("rule text is empty")

// New returns the matcher named by config MATCHER.
func New(name string) (Matcher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "regex":
		return NewRegex(), nil
	case "keyword":
		return Keyword{}, nil
	default:
		return nil, fmt.Errorf("unknown matcher %q", name)
	}
}

type compiled struct {
	re  *regexp.Regexp
	err error
}

// Regex treats rule text as a case-insensitive RE2 pattern. Compiled patterns are memoized.
type Regex struct {
	cache sync.Map // string -> compiled
}

func NewRegex() *Regex {
	return &Regex{}
}

func (m *Regex) Matches(ruleText, messageText string) (bool, error) {
	if strings.TrimSpace(ruleText) == "" {
		return false, ErrEmptyRule
	}
	v, ok := m.cache.Load(ruleText)
	if !ok {
		re, err := regexp.Compile("(?i)" + ruleText)
		v, _ = m.cache.LoadOrStore(ruleText, compiled{re: re, err: err})
	}
	c := v.(compiled)
	if c.err != nil {
		return false, fmt.Errorf("invalid pattern: %w", c.err)
	}
	return c.re.MatchString(messageText), nil
}

// Keyword treats rule text as a comma or newline separated list of phrases.
// A message matches when it contains any phrase on word boundaries, ignoring case.
type Keyword struct{}

func (Keyword) Matches(ruleText, messageText string) (bool, error) {
	phrases := strings.FieldsFunc(ruleText, func(r rune) bool { return r == ',' || r == '\n' })
	words := tokenize(messageText)
	empty := true
	for _, p := range phrases {
		want := tokenize(p)
		if len(want) == 0 {
			continue
		}
		empty = false
		if containsRun(words, want) {
			return true, nil
		}
	}
	if empty {
		return false, ErrEmptyRule
	}
	return false, nil
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsRun(haystack, needle []string) bool {
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j := range needle {
			if haystack[i+j] != needle[j] {
				continue outer
			}
		}
		return true
	}
	return false
}
