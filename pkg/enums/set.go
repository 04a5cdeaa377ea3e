package enums

import (
	"fmt"
	"slices"
)

// valueSet is the closed list of values for one string enum.
type valueSet[T ~string] struct {
	kind   string
	values []T
}

func newValueSet[T ~string](kind string, values ...T) valueSet[T] {
	return valueSet[T]{kind: kind, values: values}
}

func (s valueSet[T]) has(v T) bool {
	return slices.Contains(s.values, v)
}

func (s valueSet[T]) parse(raw string) (T, error) {
	if v := T(raw); s.has(v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", s.kind, raw)
}

func (s valueSet[T]) all() []T {
	return slices.Clone(s.values)
}
