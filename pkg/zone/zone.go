// Package zone implements execution zones: scheduling wrappers that associate a unit of work with
// an identity so that change-detection in the host application can batch updates.
package zone

import "sync"

// RxZoneName is the name of the zones forked for live cursors.
const RxZoneName = "livecursor-zone"

// PropertyChangeDetection is set to false on zones forked for live cursors so that host
// change-detection does not trigger on work run inside them.
const PropertyChangeDetection = "changeDetection"

// Zone is an execution context.
type Zone interface {
	// Name returns the name of the zone.
	Name() string
	// Parent returns the zone this zone was forked from, or nil.
	Parent() Zone
	// Run executes fn inside the zone and returns its result.
	Run(fn func() any) any
	// Fork creates a child zone.
	Fork(spec Spec) Zone
	// Get looks up a zone property, consulting the parent chain.
	Get(key string) any
}

// Spec describes a zone to be forked.
type Spec struct {
	Name       string
	Properties map[string]any
}

// Noop is the fallback zone used when the host provides none: it runs work directly and forks
// into itself.
var Noop Zone = noopZone{}

type noopZone struct{}

func (noopZone) Name() string          { return RxZoneName }
func (noopZone) Parent() Zone          { return nil }
func (noopZone) Run(fn func() any) any { return fn() }
func (noopZone) Fork(Spec) Zone        { return Noop }
func (noopZone) Get(string) any        { return nil }

// Hook is called around every Run of a zone created by Root. Hosts use it to observe when work
// enters and leaves a zone, e.g., to schedule change detection.
type Hook func(z Zone, enter bool)

// basicZone is a zone with a name, properties and a parent.
type basicZone struct {
	name       string
	parent     *basicZone
	properties map[string]any
	hook       Hook
	depth      int
	mu         sync.Mutex
}

// Root creates a new root zone. The optional hook is inherited by forked zones.
func Root(name string, hook Hook) Zone {
	return &basicZone{name: name, properties: map[string]any{}, hook: hook}
}

func (z *basicZone) Name() string { return z.name }

func (z *basicZone) Parent() Zone {
	if z.parent == nil {
		return nil
	}
	return z.parent
}

func (z *basicZone) Run(fn func() any) any {
	z.mu.Lock()
	z.depth++
	z.mu.Unlock()

	if z.hook != nil {
		z.hook(z, true)
	}

	defer func() {
		if z.hook != nil {
			z.hook(z, false)
		}
		z.mu.Lock()
		z.depth--
		z.mu.Unlock()
	}()

	return fn()
}

// Active returns true while work is running inside the zone.
func Active(z Zone) bool {
	bz, ok := z.(*basicZone)
	if !ok {
		return false
	}
	bz.mu.Lock()
	defer bz.mu.Unlock()
	return bz.depth > 0
}

func (z *basicZone) Fork(spec Spec) Zone {
	props := make(map[string]any, len(spec.Properties))
	for k, v := range spec.Properties {
		props[k] = v
	}
	return &basicZone{name: spec.Name, parent: z, properties: props, hook: z.hook}
}

func (z *basicZone) Get(key string) any {
	for cur := z; cur != nil; cur = cur.parent {
		if v, ok := cur.properties[key]; ok {
			return v
		}
	}
	return nil
}

// Environment is the capability through which the host application provides its current zone. It
// is injected once at construction time.
type Environment interface {
	Current() Zone
}

type staticEnvironment struct{ zone Zone }

func (e staticEnvironment) Current() Zone { return e.zone }

// Static returns an environment whose current zone is always z.
func Static(z Zone) Environment {
	return staticEnvironment{zone: z}
}

// ParentOf returns the zone that change detection should be nudged on for work run in z: the
// parent of a live cursor zone, or z itself otherwise.
func ParentOf(z Zone) Zone {
	if z != nil && z.Name() == RxZoneName {
		return z.Parent()
	}
	return z
}

// ForkRx forks a live cursor zone off the current zone of the environment. Without an environment
// or a current zone the fork is taken from Noop.
func ForkRx(env Environment) Zone {
	var parent Zone
	if env != nil {
		parent = ParentOf(env.Current())
	}
	if parent == nil {
		parent = Noop
	}
	return parent.Fork(Spec{
		Name:       RxZoneName,
		Properties: map[string]any{PropertyChangeDetection: false},
	})
}
