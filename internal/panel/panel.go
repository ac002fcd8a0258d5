package panel

import (
	"sync"
)

// Kind identifies one mobile panel. Exactly one non-None panel is open
// at a time.
type Kind string

const (
	KindRoute    Kind = "route"
	KindOptions  Kind = "options"
	KindResults  Kind = "results"
	KindTracking Kind = "tracking"
	KindProfile  Kind = "profile"
	KindNone     Kind = "none"
)

func Valid(k Kind) bool {
	switch k {
	case KindRoute, KindOptions, KindResults, KindTracking, KindProfile:
		return true
	}
	return false
}

type Publisher interface {
	Publish(topic string, v any)
}

type event struct {
	Panel Kind `json:"panel"`
	Nav   Kind `json:"nav"`
}

// Machine is the single owner of panel visibility. The original app
// redeclared this state in five scripts; here every component goes
// through one instance.
type Machine struct {
	mu     sync.Mutex
	active Kind
	nav    Kind
	hooks  map[Kind]func()
	pub    Publisher
}

func NewMachine(pub Publisher) *Machine {
	return &Machine{
		active: KindNone,
		nav:    KindRoute,
		hooks:  map[Kind]func(){},
		pub:    pub,
	}
}

// OnEnter registers the side effect run whenever k is opened.
func (m *Machine) OnEnter(k Kind, hook func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[k] = hook
}

// Show opens k, closing whatever panel was open first. Requesting the
// panel that is already open is a no-op so entry side effects do not
// rerun. Returns whether a transition happened.
func (m *Machine) Show(k Kind) bool {
	if !Valid(k) {
		return false
	}

	m.mu.Lock()
	if m.active == k {
		m.mu.Unlock()
		return false
	}
	m.active = k
	m.nav = k
	hook := m.hooks[k]
	pub := m.pub
	m.mu.Unlock()

	if pub != nil {
		pub.Publish("panel", event{Panel: k, Nav: k})
	}
	if hook != nil {
		hook()
	}
	return true
}

// Close hides the open panel. The nav indicator falls back to the route
// tab so a fresh interaction lands on route planning.
func (m *Machine) Close() {
	m.mu.Lock()
	m.active = KindNone
	m.nav = KindRoute
	pub := m.pub
	m.mu.Unlock()

	if pub != nil {
		pub.Publish("panel", event{Panel: KindNone, Nav: KindRoute})
	}
}

func (m *Machine) Active() Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// NavIndicator reports which nav item is highlighted.
func (m *Machine) NavIndicator() Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nav
}
