// Package skills groups tool definitions into named skills and selects the
// subset relevant to an incoming message, bounding how many tool
// definitions are exposed to the model in one turn.
package skills

import (
	"strings"

	"github.com/adpilot-ai/adpilot/internal/domain"
)

// GeneralSkill is the fallback skill selected when nothing else matches.
// It carries conversational utilities only, never side-effecting tools.
const GeneralSkill = "general"

// Skill is a named group of related tool definitions with a keyword
// trigger predicate.
type Skill struct {
	Name     string
	Keywords []string
	Tools    []domain.ToolDefinition
}

// Matches reports whether the message triggers this skill. Matching is a
// case-insensitive check of each keyword against the message: multi-word
// keywords match as substrings, single words as whole tokens.
func (s *Skill) Matches(message string) bool {
	if s.Name == GeneralSkill {
		return false
	}
	lower := strings.ToLower(message)
	tokens := tokenize(lower)
	for _, kw := range s.Keywords {
		kw = strings.ToLower(kw)
		if strings.ContainsRune(kw, ' ') {
			if strings.Contains(lower, kw) {
				return true
			}
			continue
		}
		if _, ok := tokens[kw]; ok {
			return true
		}
	}
	return false
}

func tokenize(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		tokens[tok] = struct{}{}
	}
	return tokens
}
