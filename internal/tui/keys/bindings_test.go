package keys

import (
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestHandleEventPagePrecedence(t *testing.T) {
	r := NewRegistry()
	var got string
	r.Add(Global, &Action{Key: tcell.KeyRune, Rune: 'r', Label: "r", Description: "reconcile", Handler: func() { got = "global" }})
	r.Add("thread", &Action{Key: tcell.KeyRune, Rune: 'r', Label: "r", Description: "recall", Handler: func() { got = "thread" }})

	tests := []struct {
		page string
		want string
	}{
		{"thread", "thread"},
		{"sidebar", "global"},
		{Global, "global"},
	}
	for _, tt := range tests {
		t.Run(tt.page, func(t *testing.T) {
			got = ""
			if !r.HandleEvent(tt.page, tcell.NewEventKey(tcell.KeyRune, 'r', tcell.ModNone)) {
				t.Fatal("no binding handled the event")
			}
			if got != tt.want {
				t.Errorf("handled by %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHandleEventSpecialKeys(t *testing.T) {
	r := NewRegistry()
	called := false
	r.Add(Global, &Action{Key: tcell.KeyCtrlL, Label: "Ctrl-L", Handler: func() { called = true }})

	if r.HandleEvent("thread", tcell.NewEventKey(tcell.KeyRune, 'l', tcell.ModNone)) {
		t.Error("plain rune matched a control key binding")
	}
	if !r.HandleEvent("thread", tcell.NewEventKey(tcell.KeyCtrlL, 0, tcell.ModCtrl)) || !called {
		t.Error("Ctrl-L binding not triggered")
	}
}

func TestHintsOrder(t *testing.T) {
	r := NewRegistry()
	noop := func() {}
	r.Add(Global, &Action{Key: tcell.KeyRune, Rune: 'q', Label: "q", Description: "Quit", Handler: noop})
	r.Add("thread", &Action{Key: tcell.KeyRune, Rune: 'i', Label: "i", Description: "Compose", Handler: noop})
	r.Add("thread", &Action{Key: tcell.KeyRune, Rune: 'x', Label: "x", Description: "secret", Handler: noop, Hidden: true})
	r.Add("thread", &Action{Key: tcell.KeyRune, Rune: 'd', Label: "d", Description: "Delete", Handler: noop})

	hints := r.Hints("thread")
	want := []string{"Compose", "Delete", "Quit"}
	if len(hints) != len(want) {
		t.Fatalf("hints = %+v, want %v", hints, want)
	}
	for i, h := range hints {
		if h.Description != want[i] {
			t.Errorf("hints[%d] = %q, want %q", i, h.Description, want[i])
		}
	}
}
