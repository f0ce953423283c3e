package zone

import (
	"github.com/l7mp/livecursor/pkg/observable"
)

// Redirector binds a target zone with the runners used to nudge its parent.
type Redirector struct {
	Target  Zone
	Runners *Runners
}

// NewRedirector creates a redirector. A nil target means Noop.
func NewRedirector(target Zone, runners *Runners) Redirector {
	if target == nil {
		target = Noop
	}
	return Redirector{Target: target, Runners: runners}
}

// NewEnvRedirector creates a redirector that targets the zone the host is running in: the current
// zone of env, or its parent if the current zone is a live cursor zone. A nil environment means
// Noop.
func NewEnvRedirector(env Environment, runners *Runners) Redirector {
	var target Zone
	if env != nil {
		target = ParentOf(env.Current())
	}
	return NewRedirector(target, runners)
}

// Redirect delivers every notification of src inside the target zone and then nudges the parent
// of the target zone (see ParentOf) through the runners. Nil runners disable the nudge.
func Redirect[T any](r Redirector, src observable.Source[T]) observable.Observable[T] {
	target := r.Target
	if target == nil {
		target = Noop
	}

	return observable.Lift(src, func(dst observable.Observer[T]) observable.Observer[T] {
		deliver := func(fn func()) {
			target.Run(func() any { fn(); return nil })
			if r.Runners != nil {
				r.Runners.Nudge(ParentOf(target))
			}
		}

		return observable.ObserverFuncs[T]{
			NextFunc:     func(v T) { deliver(func() { dst.Next(v) }) },
			ErrorFunc:    func(err error) { deliver(func() { dst.Error(err) }) },
			CompleteFunc: func() { deliver(dst.Complete) },
		}
	})
}
