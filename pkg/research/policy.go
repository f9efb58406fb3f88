package research

import "fmt"

// BreadthPolicy computes the breadth budget of a child frame from its parent's.
type BreadthPolicy func(breadth int) int

// HalveBreadth narrows breadth geometrically: max(1, floor(b/2)).
func HalveBreadth(breadth int) int {
	return max(1, breadth/2)
}

// DecrementBreadth narrows breadth linearly: max(1, b-1).
func DecrementBreadth(breadth int) int {
	return max(1, breadth-1)
}

// BreadthPolicyByName resolves the policy names accepted in configuration.
func BreadthPolicyByName(name string) (BreadthPolicy, error) {
	switch name {
	case "", "halve":
		return HalveBreadth, nil
	case "decrement":
		return DecrementBreadth, nil
	default:
		return nil, fmt.Errorf("%w: unknown breadth policy %q", ErrInvalidConfig, name)
	}
}
