package ui

import (
	"strings"
	"testing"

	"github.com/rivo/tview"

	"github.com/matheus3301/pmsync/internal/api"
	"github.com/matheus3301/pmsync/internal/tui/keys"
)

type page struct {
	*tview.Box
	name string
}

func (p page) Name() string                 { return p.name }
func (p page) FocusTarget() tview.Primitive { return p.Box }

func newPage(name string) page { return page{Box: tview.NewBox(), name: name} }

func TestPagesStack(t *testing.T) {
	p := NewPages()
	var seen [][]string
	p.SetOnChange(func(stack []string) { seen = append(seen, stack) })

	sidebar, thread, help := newPage("Conversations"), newPage("Thread"), newPage("Help")
	p.Push(sidebar)
	p.Push(thread)
	p.Push(help)
	if got := strings.Join(p.Names(), ">"); got != "Conversations>Thread>Help" {
		t.Fatalf("stack = %s", got)
	}

	// Pushing a page already in the stack unwinds to it.
	p.Push(thread)
	if p.Current() != "Thread" || len(p.Names()) != 2 {
		t.Errorf("after re-push stack = %v", p.Names())
	}

	if top := p.Pop(); top.Name() != "Conversations" {
		t.Errorf("Pop returned %s", top.Name())
	}
	// The root page is never popped.
	if top := p.Pop(); top == nil || top.Name() != "Conversations" {
		t.Errorf("Pop on root returned %v", top)
	}
	if len(seen) == 0 {
		t.Error("OnChange never fired")
	}
}

func TestCrumbsRender(t *testing.T) {
	c := NewCrumbs(DefaultTheme())
	out := c.render([]string{"Conversations", "alice"})
	if !strings.Contains(out, " Conversations ") || !strings.Contains(out, " alice ") {
		t.Errorf("render = %q", out)
	}
	if strings.Index(out, "alice") < strings.Index(out, "Conversations") {
		t.Error("crumbs out of order")
	}
}

func TestProfileInfoUpdate(t *testing.T) {
	pi := NewProfileInfo(DefaultTheme())
	pi.Update(api.Status{Profile: "main", OwnerID: 42, GlobalPush: "LIVE", Unread: 3, CacheAvailable: true, CachedMessages: 120})
	text := pi.GetText(true)
	for _, want := range []string{"main", "42", "live", "120 msgs"} {
		if !strings.Contains(text, want) {
			t.Errorf("profile info missing %q in %q", want, text)
		}
	}
}

func TestMenuUpdate(t *testing.T) {
	m := NewMenu(DefaultTheme())
	m.Update([]keys.Hint{{Key: "i", Description: "Compose"}, {Key: "r", Description: "Recall"}, {Key: "q", Description: "Quit"}})
	text := m.GetText(true)
	if strings.Count(text, "\n") != 2 {
		t.Errorf("menu lines = %q", text)
	}
	for _, want := range []string{"<i>", "Recall", "<q>"} {
		if !strings.Contains(text, want) {
			t.Errorf("menu missing %q", want)
		}
	}
}
