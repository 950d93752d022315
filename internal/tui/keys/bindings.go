package keys

import "github.com/gdamore/tcell/v2"

// Global is the scope checked after the current page's own bindings.
const Global = ""

// Action is one key binding.
type Action struct {
	Key         tcell.Key
	Rune        rune
	Label       string // key as shown in the menu, e.g. "r" or "Ctrl-L"
	Description string
	Handler     func()
	Hidden      bool
}

// Matches reports whether ev triggers a.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

// Hint is a visible binding as rendered in the menu.
type Hint struct {
	Key         string
	Description string
}

// Registry holds bindings per page in registration order.
type Registry struct {
	scopes map[string][]*Action
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{scopes: make(map[string][]*Action)}
}

// Add registers a binding for page. Use Global for bindings that apply
// everywhere.
func (r *Registry) Add(page string, a *Action) {
	r.scopes[page] = append(r.scopes[page], a)
}

// Hints returns the visible bindings of page followed by the global ones.
func (r *Registry) Hints(page string) []Hint {
	var hints []Hint
	add := func(list []*Action) {
		for _, a := range list {
			if !a.Hidden {
				hints = append(hints, Hint{Key: a.Label, Description: a.Description})
			}
		}
	}
	if page != Global {
		add(r.scopes[page])
	}
	add(r.scopes[Global])
	return hints
}

// HandleEvent runs the first binding of page, then of the global scope, that
// matches ev. It reports whether one ran.
func (r *Registry) HandleEvent(page string, ev *tcell.EventKey) bool {
	for _, scope := range []string{page, Global} {
		for _, a := range r.scopes[scope] {
			if a.Matches(ev) {
				a.Handler()
				return true
			}
		}
		if page == Global {
			break
		}
	}
	return false
}
