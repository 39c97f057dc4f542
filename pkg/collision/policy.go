package collision

import (
	"fmt"
	"strings"

	"github.com/opd-ai/go-collider/pkg/quadtree"
)

// Policy decides what happens to the colliders of a tick.
type Policy int

const (
	// PolicyMark keeps colliders alive and flags them.
	PolicyMark Policy = iota
	// PolicyRemove takes colliders out of the population.
	PolicyRemove
)

// ParsePolicy accepts "mark" (also "c", "color") and "remove" (also "d",
// "destroy"), case-insensitively.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mark", "c", "color":
		return PolicyMark, nil
	case "remove", "d", "destroy":
		return PolicyRemove, nil
	default:
		return 0, fmt.Errorf("unknown collision policy %q", s)
	}
}

func (p Policy) String() string {
	switch p {
	case PolicyMark:
		return "mark"
	case PolicyRemove:
		return "remove"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) {
	if p != PolicyMark && p != PolicyRemove {
		return nil, fmt.Errorf("unknown collision policy %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(text []byte) error {
	parsed, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Apply splits population according to policy and the colliders in result.
// PolicyMark keeps everyone and returns the colliders as marked.
// PolicyRemove returns the non-colliders and marks nothing.
// result must come from a pass over the same population.
func Apply[P quadtree.Point](policy Policy, population []P, result *Result[P]) (live, marked []P) {
	if result == nil {
		return population, nil
	}
	switch policy {
	case PolicyRemove:
		live = make([]P, 0, max(0, len(population)-result.Len()))
		for i, p := range population {
			if !result.IsCollider(i) {
				live = append(live, p)
			}
		}
		return live, nil
	default:
		return population, result.Colliders
	}
}
