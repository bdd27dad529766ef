package sweep

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/sweeper/internal/errors"
	"github.com/Iron-Ham/sweeper/internal/trial"
)

// IDAxis is the axis Create appends so every trial records its sweep.
const IDAxis = "sweep_id"

// Axis is one varying parameter and its candidate values.
type Axis struct {
	Name   string
	Values []any
}

// Axes is an ordered list of varying parameters. Order matters: the
// cartesian product varies the last axis fastest.
type Axes []Axis

// ParseAxes decodes a YAML mapping of axis name to candidate values, keeping
// the document's key order. A scalar value is a single-candidate axis.
func ParseAxes(data []byte) (Axes, error) {
	var axes Axes
	if err := yaml.Unmarshal(data, &axes); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrInvalidAxes, err)
	}
	if err := axes.Validate(); err != nil {
		return nil, err
	}
	return axes, nil
}

// LoadAxesFile reads and parses an axes YAML file.
func LoadAxesFile(path string) (Axes, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading axes file: %w", err)
	}
	return ParseAxes(data)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Axes) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: axes must be a mapping of name to values", node.Line)
	}

	axes := make(Axes, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]

		var values []any
		if valNode.Kind == yaml.SequenceNode {
			if err := valNode.Decode(&values); err != nil {
				return fmt.Errorf("line %d: axis %q: %w", valNode.Line, keyNode.Value, err)
			}
		} else {
			var v any
			if err := valNode.Decode(&v); err != nil {
				return fmt.Errorf("line %d: axis %q: %w", valNode.Line, keyNode.Value, err)
			}
			values = []any{v}
		}
		axes = append(axes, Axis{Name: keyNode.Value, Values: values})
	}

	*a = axes
	return nil
}

// MarshalYAML implements yaml.Marshaler, writing axes in order.
func (a Axes) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, axis := range a {
		valNode := &yaml.Node{}
		if err := valNode.Encode(axis.Values); err != nil {
			return nil, fmt.Errorf("axis %q: %w", axis.Name, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: axis.Name},
			valNode,
		)
	}
	return node, nil
}

// Validate checks that axis names are unique and unreserved and that every
// axis has at least one value. Values must be representable in JSON, so
// infinities and NaN are rejected.
func (a Axes) Validate() error {
	seen := make(map[string]bool, len(a))
	for _, axis := range a {
		switch {
		case axis.Name == "":
			return errors.NewValidationError("axis name is required").WithCause(errors.ErrInvalidAxes)
		case trial.IsReservedKey(axis.Name):
			return errors.NewValidationError("axis name is reserved for claim state").
				WithField(axis.Name).WithCause(errors.ErrInvalidAxes)
		case seen[axis.Name]:
			return errors.NewValidationError("duplicate axis").
				WithField(axis.Name).WithCause(errors.ErrInvalidAxes)
		case len(axis.Values) == 0:
			return errors.NewValidationError("axis has no values").
				WithField(axis.Name).WithCause(errors.ErrInvalidAxes)
		}
		for _, v := range axis.Values {
			if bad, ok := nonFinite(v); ok {
				return errors.NewValidationError("axis value must be a finite number").
					WithField(axis.Name).WithValue(bad).WithCause(errors.ErrInvalidAxes)
			}
		}
		seen[axis.Name] = true
	}
	return nil
}

// nonFinite returns the first infinite or NaN float inside v.
func nonFinite(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, math.IsInf(x, 0) || math.IsNaN(x)
	case float32:
		f := float64(x)
		return f, math.IsInf(f, 0) || math.IsNaN(f)
	case []any:
		for _, e := range x {
			if f, ok := nonFinite(e); ok {
				return f, true
			}
		}
	case map[string]any:
		for _, e := range x {
			if f, ok := nonFinite(e); ok {
				return f, true
			}
		}
	}
	return 0, false
}

// Names returns the axis names in order.
func (a Axes) Names() []string {
	names := make([]string, len(a))
	for i, axis := range a {
		names[i] = axis.Name
	}
	return names
}

// Has reports whether an axis with the given name exists.
func (a Axes) Has(name string) bool {
	for _, axis := range a {
		if axis.Name == name {
			return true
		}
	}
	return false
}

// Product returns every combination of axis values, last axis varying
// fastest. Axes named in exclude are left out of each combination. An empty
// axis yields no combinations.
func Product(axes Axes, exclude ...string) []map[string]any {
	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[name] = true
	}

	total := 1
	for _, axis := range axes {
		total *= len(axis.Values)
	}
	if total == 0 {
		return nil
	}

	combos := make([]map[string]any, 0, total)
	idx := make([]int, len(axes))
	for {
		combo := make(map[string]any, len(axes))
		for i, axis := range axes {
			if !skip[axis.Name] {
				combo[axis.Name] = axis.Values[idx[i]]
			}
		}
		combos = append(combos, combo)

		// Odometer increment from the last axis.
		i := len(axes) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(axes[i].Values) {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return combos
		}
	}
}
