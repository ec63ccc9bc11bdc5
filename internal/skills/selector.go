package skills

// Selector maps an incoming message to the ordered subset of skills
// relevant to it. Selection is pure and side-effect free; ties are broken
// by catalog declaration order.
type Selector struct {
	registry *Registry
	maxSkill int
}

// NewSelector creates a selector capped at maxSkills per turn.
func NewSelector(registry *Registry, maxSkills int) *Selector {
	if maxSkills <= 0 {
		maxSkills = 3
	}
	return &Selector{registry: registry, maxSkill: maxSkills}
}

// Select returns the skills whose trigger predicate matches the message,
// capped at the configured maximum. When nothing matches, the general
// skill is returned alone.
func (s *Selector) Select(message string) []*Skill {
	var selected []*Skill
	for _, sk := range s.registry.Skills() {
		if len(selected) >= s.maxSkill {
			break
		}
		if sk.Matches(message) {
			selected = append(selected, sk)
		}
	}
	if len(selected) == 0 {
		return []*Skill{s.registry.General()}
	}
	return selected
}
