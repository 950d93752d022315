package ui

import "github.com/rivo/tview"

// Component is one screen of the application.
type Component interface {
	tview.Primitive
	// Name identifies the page and labels its breadcrumb.
	Name() string
	// FocusTarget is the widget that receives focus when the page is shown.
	FocusTarget() tview.Primitive
}

// Pages is a navigation stack over tview.Pages.
type Pages struct {
	*tview.Pages
	stack    []Component
	onChange func(stack []string)
}

// NewPages creates an empty stack.
func NewPages() *Pages {
	return &Pages{Pages: tview.NewPages()}
}

// SetOnChange registers a callback fired with the page names after every
// stack change.
func (p *Pages) SetOnChange(fn func(stack []string)) {
	p.onChange = fn
}

// Push shows c on top of the stack. Pushing the page already on top is a
// no-op; pushing one deeper in the stack unwinds back to it.
func (p *Pages) Push(c Component) {
	for i, existing := range p.stack {
		if existing.Name() == c.Name() {
			for _, above := range p.stack[i+1:] {
				p.HidePage(above.Name())
			}
			p.stack = p.stack[:i+1]
			p.show(c)
			return
		}
	}
	if len(p.stack) > 0 {
		p.HidePage(p.stack[len(p.stack)-1].Name())
	}
	if !p.HasPage(c.Name()) {
		p.AddPage(c.Name(), c, true, false)
	}
	p.stack = append(p.stack, c)
	p.show(c)
}

// Pop removes the top page unless it is the last one, and returns the page
// now on top.
func (p *Pages) Pop() Component {
	if len(p.stack) <= 1 {
		return p.Top()
	}
	p.HidePage(p.stack[len(p.stack)-1].Name())
	p.stack = p.stack[:len(p.stack)-1]
	top := p.stack[len(p.stack)-1]
	p.show(top)
	return top
}

// Top returns the page on top of the stack, or nil.
func (p *Pages) Top() Component {
	if len(p.stack) == 0 {
		return nil
	}
	return p.stack[len(p.stack)-1]
}

// Current returns the name of the page on top, or "".
func (p *Pages) Current() string {
	if top := p.Top(); top != nil {
		return top.Name()
	}
	return ""
}

// Names returns the page names from bottom to top.
func (p *Pages) Names() []string {
	names := make([]string, len(p.stack))
	for i, c := range p.stack {
		names[i] = c.Name()
	}
	return names
}

func (p *Pages) show(c Component) {
	p.ShowPage(c.Name())
	p.SendToFront(c.Name())
	if p.onChange != nil {
		p.onChange(p.Names())
	}
}
