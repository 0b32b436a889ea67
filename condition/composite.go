package condition

import "strings"

// And is satisfied when every component is. An empty And is true.
type And struct {
	components []Condition
}

// NewAnd creates an And over components. The slice is copied.
func NewAnd(components ...Condition) *And {
	return &And{components: append([]Condition(nil), components...)}
}

// Satisfied folds components with logical and, short-circuiting.
func (c *And) Satisfied() bool {
	for _, comp := range c.components {
		if !comp.Satisfied() {
			return false
		}
	}
	return true
}

func (c *And) String() string { return join("and", c.components) }

func (c *And) sealed() {}

// Or is satisfied when any component is. An empty Or is false.
type Or struct {
	components []Condition
}

// NewOr creates an Or over components. The slice is copied.
func NewOr(components ...Condition) *Or {
	return &Or{components: append([]Condition(nil), components...)}
}

// Satisfied folds components with logical or, short-circuiting.
func (c *Or) Satisfied() bool {
	for _, comp := range c.components {
		if comp.Satisfied() {
			return true
		}
	}
	return false
}

func (c *Or) String() string { return join("or", c.components) }

func (c *Or) sealed() {}

func join(op string, components []Condition) string {
	parts := make([]string, len(components))
	for i, comp := range components {
		parts[i] = comp.String()
	}
	return op + "(" + strings.Join(parts, ", ") + ")"
}
