package timeline

import "weak"

// Subject is the externally owned object an instance runs on behalf of
// (a device, a prop, a player). The scheduler only asks whether it is still
// alive and never keeps it alive.
type Subject interface {
	Alive() bool
}

// SubjectFunc adapts a liveness check to Subject.
type SubjectFunc func() bool

// Alive calls f.
func (f SubjectFunc) Alive() bool { return f() }

type weakSubject[T any] struct {
	ptr weak.Pointer[T]
}

// Weak returns a Subject holding only a weak pointer to v. It reports dead
// once v has been garbage collected.
func Weak[T any](v *T) Subject {
	return weakSubject[T]{ptr: weak.Make(v)}
}

func (w weakSubject[T]) Alive() bool {
	return w.ptr.Value() != nil
}
