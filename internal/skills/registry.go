package skills

import (
	"errors"
	"fmt"

	"github.com/adpilot-ai/adpilot/internal/domain"
)

// ErrToolNotFound is returned when no skill declares the requested tool.
var ErrToolNotFound = errors.New("tool not found")

// Registry is the catalog of skills and their tools, built once at process
// start from a static declaration list. Tool names are globally unique
// across all skills; a duplicate fails construction rather than silently
// shadowing. The registry is immutable after construction and safe for
// concurrent use.
type Registry struct {
	skills  []Skill
	byName  map[string]*Skill
	tools   map[string]*toolEntry
	general *Skill
}

type toolEntry struct {
	def   int // index into skill.Tools
	skill *Skill
}

// NewRegistry builds a registry from the declared skills.
func NewRegistry(declared []Skill) (*Registry, error) {
	r := &Registry{
		skills: declared,
		byName: make(map[string]*Skill),
		tools:  make(map[string]*toolEntry),
	}
	for i := range r.skills {
		sk := &r.skills[i]
		if _, exists := r.byName[sk.Name]; exists {
			return nil, fmt.Errorf("duplicate skill name %q", sk.Name)
		}
		r.byName[sk.Name] = sk
		if sk.Name == GeneralSkill {
			r.general = sk
		}
		for j := range sk.Tools {
			name := sk.Tools[j].Name
			if prev, exists := r.tools[name]; exists {
				return nil, fmt.Errorf("duplicate tool name %q in skills %q and %q", name, prev.skill.Name, sk.Name)
			}
			r.tools[name] = &toolEntry{def: j, skill: sk}
		}
	}
	if r.general == nil {
		return nil, fmt.Errorf("catalog must declare a %q skill", GeneralSkill)
	}
	return r, nil
}

// Get returns the tool definition with the given name.
func (r *Registry) Get(name string) (*domain.ToolDefinition, error) {
	entry, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return &entry.skill.Tools[entry.def], nil
}

// Tools flattens the given skills into their tool definitions, preserving
// skill order and each skill's declaration order.
func (r *Registry) Tools(selected []*Skill) []domain.ToolDefinition {
	var out []domain.ToolDefinition
	for _, sk := range selected {
		out = append(out, sk.Tools...)
	}
	return out
}

// Skills returns all declared skills in declaration order.
func (r *Registry) Skills() []*Skill {
	out := make([]*Skill, len(r.skills))
	for i := range r.skills {
		out[i] = &r.skills[i]
	}
	return out
}

// General returns the fallback skill.
func (r *Registry) General() *Skill {
	return r.general
}
