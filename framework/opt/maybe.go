package opt

import "fmt"

// Maybe is an optional value. The harness uses it for facts that may legitimately be absent,
// such as the exit code of a server that was still running when the client finished.
type Maybe[V any] struct {
	defined bool
	value   V
}

// Some returns a Maybe that has a defined value.
func Some[V any](value V) Maybe[V] {
	return Maybe[V]{defined: true, value: value}
}

// None returns a Maybe with no value.
func None[V any]() Maybe[V] { return Maybe[V]{} }

// IsDefined returns true if the Maybe has a value.
func (m Maybe[V]) IsDefined() bool { return m.defined }

// Value returns the value, or the zero value of V if none is defined.
func (m Maybe[V]) Value() V { return m.value }

// OrElse returns the value if defined, or valueIfUndefined otherwise.
func (m Maybe[V]) OrElse(valueIfUndefined V) V {
	if m.defined {
		return m.value
	}
	return valueIfUndefined
}

// String returns "[none]" for an undefined value, otherwise the value formatted with %v.
func (m Maybe[V]) String() string {
	if m.defined {
		return fmt.Sprintf("%v", m.value)
	}
	return "[none]"
}
