package tui

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/matheus3301/pmsync/internal/api"
	"github.com/matheus3301/pmsync/internal/history"
	"github.com/matheus3301/pmsync/internal/tui/keys"
	"github.com/matheus3301/pmsync/internal/tui/model"
	"github.com/matheus3301/pmsync/internal/tui/ui"
	"github.com/matheus3301/pmsync/internal/tui/views"
)

// Key binding scopes.
const (
	scopeSidebar = "sidebar"
	scopeThread  = "thread"
	scopeSearch  = "search"
	scopeOther   = "other"
)

const (
	refreshInterval = 5 * time.Second
	rewatchDelay    = 2 * time.Second
)

// App is the terminal UI shell.
type App struct {
	app      *tview.Application
	theme    *ui.Theme
	pages    *ui.Pages
	vm       *model.ViewModel
	registry *keys.Registry

	profileInfo *ui.ProfileInfo
	menu        *ui.Menu
	crumbs      *ui.Crumbs
	prompt      *ui.Prompt
	body        *tview.Flex
	statusBar   *views.StatusBar

	sidebar *views.Sidebar
	thread  *views.Thread
	search  *views.SearchView
	details *views.ConversationInfo
	help    *views.HelpView

	promptVisible bool
	viewing       bool
	olderBusy     atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the UI for profile over backend.
func NewApp(backend model.Backend, profile string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()
	vm := model.NewViewModel(backend)

	a := &App{
		app:         tview.NewApplication(),
		theme:       theme,
		pages:       ui.NewPages(),
		vm:          vm,
		registry:    keys.NewRegistry(),
		profileInfo: ui.NewProfileInfo(theme),
		menu:        ui.NewMenu(theme),
		crumbs:      ui.NewCrumbs(theme),
		prompt:      ui.NewPrompt(theme),
		statusBar:   views.NewStatusBar(theme),
		sidebar:     views.NewSidebar(theme),
		thread:      views.NewThread(theme),
		details:     views.NewConversationInfo(theme),
		help:        views.NewHelpView(theme),
		ctx:         ctx,
		cancel:      cancel,
	}
	a.search = views.NewSearchView(theme, vm.DisplayName, vm.OwnerID)
	a.statusBar.SetStatus(api.Status{Profile: profile})

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) scope() string {
	switch a.pages.Top() {
	case a.sidebar:
		return scopeSidebar
	case a.thread:
		return scopeThread
	case a.search:
		return scopeSearch
	}
	return scopeOther
}

func (a *App) setupBindings() {
	r := a.registry
	key := func(scope string, ch rune, desc string, fn func()) {
		r.Add(scope, &keys.Action{Key: tcell.KeyRune, Rune: ch, Label: string(ch), Description: desc, Handler: fn})
	}

	key(keys.Global, ':', "Command", func() { a.showPrompt(ui.PromptCommand) })
	key(keys.Global, '?', "Help", func() { a.show(a.help) })
	r.Add(keys.Global, &keys.Action{Key: tcell.KeyCtrlR, Label: "Ctrl-R", Description: "Reconcile", Handler: a.reconcile})
	key(keys.Global, 'q', "Quit", a.Stop)

	r.Add(scopeSidebar, &keys.Action{Key: tcell.KeyEnter, Label: "Enter", Description: "Open", Handler: a.openSelected})
	key(scopeSidebar, '/', "Filter", func() { a.showPrompt(ui.PromptFilter) })
	for n := 1; n <= 9; n++ {
		r.Add(scopeSidebar, &keys.Action{
			Key: tcell.KeyRune, Rune: rune('0' + n), Label: "1-9", Description: "Jump",
			Hidden: n > 1,
			Handler: func() {
				if id := a.sidebar.OtherAt(n); id != 0 {
					a.openConversation(id)
				}
			},
		})
	}

	key(scopeThread, 'i', "Compose", func() { a.app.SetFocus(a.thread.Composer()) })
	key(scopeThread, 'o', "Older", a.loadOlder)
	key(scopeThread, 'r', "Recall", a.recallSelected)
	key(scopeThread, 'x', "Delete", a.deleteSelected)
	key(scopeThread, 'e', "Re-edit", a.reEditSelected)
	key(scopeThread, 'm', "Mark read", a.markRead)
	key(scopeThread, 'd', "Details", a.showDetails)
}

func (a *App) setupCallbacks() {
	a.sidebar.SetSelectedFunc(func(row, _ int) {
		if id := a.sidebar.OtherAt(row); id != 0 {
			a.openConversation(id)
		}
	})
	a.thread.SetOnSend(a.send)
	a.thread.SetOnReachTop(a.loadOlder)
	a.search.SetOnQuery(a.runSearch)
	a.search.Results().SetSelectedFunc(func(_, _ int) {
		if other, _, ok := a.search.SelectedResult(); ok {
			a.openConversation(other)
		}
	})
	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		switch mode {
		case ui.PromptCommand:
			a.runCommand(ParseCommand(text))
		case ui.PromptFilter:
			a.sidebar.SetFilter(text)
		}
	})
	a.prompt.SetOnCancel(a.hidePrompt)
	a.pages.SetOnChange(func(stack []string) {
		a.crumbs.Update(stack)
		a.menu.Update(a.registry.Hints(a.scope()))
	})
}

func (a *App) setupLayout() {
	header := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(a.profileInfo, 28, 0, false).
		AddItem(a.menu, 0, 1, false).
		AddItem(ui.NewLogo(a.theme), 22, 0, false)

	a.body = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 7, 0, false).
		AddItem(a.body, 0, 1, true).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)
	a.show(a.sidebar)

	a.app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		focused := a.app.GetFocus()
		if input, ok := focused.(*tview.InputField); ok {
			if ev.Key() == tcell.KeyEscape && input != a.prompt.InputField {
				if input == a.thread.Composer() {
					a.app.SetFocus(a.thread.FocusTarget())
				} else {
					a.back()
				}
				return nil
			}
			return ev
		}
		if ev.Key() == tcell.KeyEscape {
			a.back()
			return nil
		}
		if a.registry.HandleEvent(a.scope(), ev) {
			return nil
		}
		return ev
	})
}

func (a *App) show(c ui.Component) {
	a.pages.Push(c)
	a.app.SetFocus(c.FocusTarget())
	a.syncViewing()
}

func (a *App) back() {
	if a.pages.Current() == a.sidebar.Name() && a.sidebar.Filter() != "" {
		a.sidebar.SetFilter("")
		return
	}
	top := a.pages.Pop()
	if top != nil {
		a.app.SetFocus(top.FocusTarget())
	}
	a.syncViewing()
}

// syncViewing tells the daemon whether the thread is on screen, so pushes
// for it mark messages read only while the user can see them.
func (a *App) syncViewing() {
	viewing := a.pages.Top() == a.thread
	if viewing == a.viewing {
		return
	}
	a.viewing = viewing
	go func() {
		if err := a.vm.SetViewing(a.ctx, viewing); err != nil && a.ctx.Err() == nil {
			a.vm.Flash.Warn("viewing state: " + err.Error())
		}
	}()
}

func (a *App) showPrompt(mode ui.PromptMode) {
	if mode == ui.PromptFilter && a.pages.Top() != a.sidebar {
		return
	}
	a.prompt.Activate(mode)
	if !a.promptVisible {
		a.body.AddItem(a.prompt, 3, 0, false)
		a.promptVisible = true
	}
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	if a.promptVisible {
		a.body.RemoveItem(a.prompt)
		a.promptVisible = false
	}
	if top := a.pages.Top(); top != nil {
		a.app.SetFocus(top.FocusTarget())
	}
}

// do runs fn off the UI goroutine, flashes its error and then applies after
// on the UI goroutine.
func (a *App) do(fn func() error, after func()) {
	go func() {
		err := fn()
		if err != nil && a.ctx.Err() == nil {
			a.vm.Flash.Err(describe(err))
		}
		a.app.QueueUpdateDraw(func() {
			if err == nil && after != nil {
				after()
			}
			a.statusBar.SetFlash(a.vm.Flash.Get())
		})
	}()
}

// describe turns a daemon error into a message for the flash bar.
func describe(err error) error {
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return errors.New(st.Message())
	}
	return err
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "quit":
		a.Stop()
	case "help":
		a.show(a.help)
	case "open":
		id, ok := a.sidebar.Lookup(cmd.Args)
		if !ok {
			a.flashWarn(fmt.Sprintf("no conversation matches %q", cmd.Args))
			return
		}
		a.openConversation(id)
	case "search":
		a.show(a.search)
		if cmd.Args != "" {
			a.search.SetQuery(cmd.Args)
			a.runSearch(cmd.Args)
		}
	case "media":
		m, err := ParseMediaArgs(cmd.Args)
		if err != nil {
			a.flashWarn(err.Error())
			return
		}
		a.do(func() error {
			return a.vm.SendMedia(a.ctx, m.Type, m.URL, m.Caption)
		}, a.renderThread)
	case "reconcile":
		a.reconcile()
	case "read":
		a.markRead()
	case "older":
		a.loadOlder()
	case "clear":
		a.do(func() error { return a.vm.ClearOpen(a.ctx) }, func() {
			a.vm.Flash.Info("cached messages dropped")
		})
	default:
		a.flashWarn(fmt.Sprintf("unknown command %q", cmd.Name))
	}
}

func (a *App) flashWarn(msg string) {
	a.vm.Flash.Warn(msg)
	a.statusBar.SetFlash(a.vm.Flash.Get())
}

func (a *App) openSelected() {
	if id := a.sidebar.SelectedOther(); id != 0 {
		a.openConversation(id)
	}
}

func (a *App) openConversation(otherID int64) {
	a.thread.SetConversation(otherID, a.vm.DisplayName(otherID))
	a.sidebar.SetOpen(otherID)
	// A freshly opened conversation starts out not viewed; report viewing
	// only after the daemon has switched to it.
	a.viewing = true
	a.show(a.thread)
	a.do(func() error {
		if err := a.vm.Open(a.ctx, otherID); err != nil {
			return err
		}
		return a.vm.SetViewing(a.ctx, true)
	}, a.renderThread)
}

func (a *App) renderThread() {
	a.thread.Update(a.vm.Snapshot(), a.vm.OwnerID())
}

func (a *App) send(text string) {
	a.do(func() error { return a.vm.Send(a.ctx, text) }, a.renderThread)
}

// loadOlder fetches one older page, keeping the visible messages in place.
func (a *App) loadOlder() {
	if !a.olderBusy.CompareAndSwap(false, true) {
		return
	}
	anchor := history.Capture(a.thread)
	go func() {
		defer a.olderBusy.Store(false)
		res, err := a.vm.LoadOlder(a.ctx)
		switch status.Code(err) {
		case codes.OK:
		case codes.OutOfRange:
			a.vm.Flash.Info("beginning of conversation")
		case codes.Aborted:
			return
		default:
			a.vm.Flash.Err(describe(err))
		}
		a.app.QueueUpdateDraw(func() {
			a.renderThread()
			if res.Added > 0 {
				anchor.Restore()
			}
			a.statusBar.SetFlash(a.vm.Flash.Get())
		})
	}()
}

func (a *App) recallSelected() {
	m, ok := a.thread.SelectedMessage()
	if !ok {
		return
	}
	if !m.CanRecall {
		a.flashWarn("only your own recent messages can be recalled")
		return
	}
	a.do(func() error { return a.vm.Recall(a.ctx, m.ID) }, a.renderThread)
}

func (a *App) deleteSelected() {
	m, ok := a.thread.SelectedMessage()
	if !ok || m.ID == 0 {
		return
	}
	a.do(func() error { return a.vm.Delete(a.ctx, m.ID) }, a.renderThread)
}

func (a *App) reEditSelected() {
	m, ok := a.thread.SelectedMessage()
	if !ok || !m.Recalled || m.SenderID != a.vm.OwnerID() {
		a.flashWarn("select one of your recalled messages to re-edit")
		return
	}
	var text string
	a.do(func() error {
		var err error
		text, err = a.vm.ReEdit(a.ctx, m.ID)
		return err
	}, func() {
		a.thread.SetDraft(text)
		a.app.SetFocus(a.thread.Composer())
	})
}

func (a *App) markRead() {
	a.do(func() error { return a.vm.MarkRead(a.ctx) }, nil)
}

func (a *App) showDetails() {
	sum, _ := a.sidebar.Summary(a.thread.OtherID())
	a.details.Update(sum, a.vm.Snapshot())
	a.show(a.details)
}

func (a *App) reconcile() {
	a.do(func() error { return a.vm.Reconcile(a.ctx) }, func() {
		a.sidebar.Update(a.vm.Summaries())
	})
}

func (a *App) runSearch(query string) {
	var hits []api.SearchHit
	a.do(func() error {
		var err error
		hits, err = a.vm.Search(a.ctx, query)
		return err
	}, func() {
		a.search.Update(hits)
		a.app.SetFocus(a.search.Results())
	})
}

// refresh reloads what r names and redraws the affected widgets.
func (a *App) refresh(r model.Reload) {
	if r.Failure != "" {
		a.vm.Flash.Warn(r.Failure)
	}
	if r.Status {
		_ = a.vm.LoadStatus(a.ctx)
	}
	if r.Summaries {
		_ = a.vm.LoadSummaries(a.ctx)
	}
	if r.Messages {
		_ = a.vm.Refresh(a.ctx)
	}
	a.app.QueueUpdateDraw(func() {
		if r.Status {
			a.profileInfo.Update(a.vm.Status())
			a.statusBar.SetStatus(a.vm.Status())
		}
		if r.Summaries {
			a.sidebar.Update(a.vm.Summaries())
		}
		if r.Messages {
			a.renderThread()
		}
		a.statusBar.SetFlash(a.vm.Flash.Get())
	})
}

// watch follows the daemon's event stream, reconnecting until the app stops.
func (a *App) watch() {
	for {
		err := a.vm.Watch(a.ctx, func(ev api.Event) error {
			if r := model.Route(ev, a.vm.OpenID()); r.Any() {
				go a.refresh(r)
			}
			return nil
		})
		if a.ctx.Err() != nil {
			return
		}
		if err != nil {
			a.vm.Flash.Warn("event stream lost: " + describe(err).Error())
		}
		select {
		case <-a.ctx.Done():
			return
		case <-time.After(rewatchDelay):
		}
	}
}

func (a *App) tick() {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.refresh(model.Reload{Status: true})
		case <-a.ctx.Done():
			return
		}
	}
}

// Run loads the initial state and blocks until the UI exits.
func (a *App) Run() error {
	go func() {
		if err := a.vm.LoadStatus(a.ctx); err != nil {
			a.vm.Flash.Err(describe(err))
		}
		if err := a.vm.LoadSummaries(a.ctx); err == nil && len(a.vm.Summaries()) == 0 {
			_ = a.vm.Reconcile(a.ctx)
		}
		a.app.QueueUpdateDraw(func() {
			a.profileInfo.Update(a.vm.Status())
			a.statusBar.SetStatus(a.vm.Status())
			a.statusBar.SetFlash(a.vm.Flash.Get())
			a.sidebar.Update(a.vm.Summaries())
		})
		go a.watch()
		go a.tick()
	}()

	err := a.app.Run()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = a.vm.SetViewing(ctx, false)
	return err
}

// Stop shuts the UI down.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
