package domain

import (
	"strconv"
	"strings"
)

// Story points and iteration names are encoded either as structured fields
// or as scoped labels. Structured wins; anything unparsable counts as
// missing, never as an error.

// StoryPoints resolves the issue's story points: the weight attribute when
// set, otherwise the first `sp::N` / `SP::N` label, otherwise 0.
func (i Issue) StoryPoints() int {
	if i.Weight != nil {
		if *i.Weight < 0 {
			return 0
		}
		return *i.Weight
	}
	for _, l := range i.Labels {
		if v, ok := parseScopedInt(l, "sp"); ok {
			return v
		}
	}
	return 0
}

// IterationRef resolves the iteration the issue belongs to: the structured
// field when present, otherwise a `sprint::<name>` or `iteration::<name>`
// label. Empty when neither source yields a name.
func (i Issue) IterationRef() string {
	if i.IterationName != "" {
		return i.IterationName
	}
	for _, l := range i.Labels {
		for _, scope := range []string{"sprint", "iteration"} {
			if v, ok := parseScopedValue(l, scope); ok && v != "" {
				return v
			}
		}
	}
	return ""
}

func parseScopedValue(label, scope string) (string, bool) {
	idx := strings.Index(label, "::")
	if idx < 0 {
		return "", false
	}
	if !strings.EqualFold(strings.TrimSpace(label[:idx]), scope) {
		return "", false
	}
	return strings.TrimSpace(label[idx+2:]), true
}

func parseScopedInt(label, scope string) (int, bool) {
	v, ok := parseScopedValue(label, scope)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
