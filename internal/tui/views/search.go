package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/pmsync/internal/api"
	"github.com/matheus3301/pmsync/internal/tui/ui"
)

// SearchView runs full-text queries over cached messages.
type SearchView struct {
	*tview.Flex
	theme   *ui.Theme
	input   *tview.InputField
	results *tview.Table
	onQuery func(query string)
	names   func(otherID int64) string
	ownerID func() int64
	data    []api.SearchHit
	now     func() time.Time
}

// NewSearchView creates the search page. names resolves a partner id to a
// display name; ownerID reports the signed-in user.
func NewSearchView(theme *ui.Theme, names func(int64) string, ownerID func() int64) *SearchView {
	input := tview.NewInputField().
		SetLabel(" Search: ").
		SetFieldWidth(0)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	results := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	results.SetBorder(true)
	results.SetBorderColor(theme.BorderColor)
	results.SetBackgroundColor(theme.BgColor)
	results.SetTitle(" Results ")
	results.SetTitleColor(theme.TitleColor)
	results.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(input, 1, 0, true).
		AddItem(results, 0, 1, false)

	sv := &SearchView{
		Flex:    flex,
		theme:   theme,
		input:   input,
		results: results,
		names:   names,
		ownerID: ownerID,
		now:     time.Now,
	}
	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && sv.onQuery != nil && sv.input.GetText() != "" {
			sv.onQuery(sv.input.GetText())
		}
	})
	return sv
}

// Name implements ui.Component.
func (sv *SearchView) Name() string { return "Search" }

// FocusTarget implements ui.Component.
func (sv *SearchView) FocusTarget() tview.Primitive { return sv.input }

// SetOnQuery sets the callback for submitted queries.
func (sv *SearchView) SetOnQuery(fn func(query string)) { sv.onQuery = fn }

// SetQuery fills the input, as when a search comes from the command prompt.
func (sv *SearchView) SetQuery(q string) { sv.input.SetText(q) }

// Update shows hits.
func (sv *SearchView) Update(hits []api.SearchHit) {
	sv.data = hits
	sv.results.Clear()
	for col, h := range []string{" WITH", " SNIPPET", " TIME"} {
		sv.results.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(sv.theme.TableHeaderFg).
			SetAttributes(tcell.AttrBold))
	}
	now := sv.now()
	for i, hit := range hits {
		row := i + 1
		sv.results.SetCell(row, 0, tview.NewTableCell(" "+safe(sv.partnerName(hit.Message))).SetMaxWidth(20).SetTextColor(sv.theme.PeerColor))
		sv.results.SetCell(row, 1, tview.NewTableCell(" "+safe(hit.Snippet)).SetExpansion(1).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(row, 2, tview.NewTableCell(" "+formatTimestamp(hit.Message.CreatedAt, now)).SetTextColor(sv.theme.FgColor))
	}
	sv.results.SetTitle(fmt.Sprintf(" Results (%d) ", len(hits)))
	if len(hits) > 0 {
		sv.results.Select(1, 0)
	}
}

// partner is the other side of m from the signed-in user's view.
func partner(m api.Message, ownerID int64) int64 {
	if m.SenderID == ownerID {
		return m.ReceiverID
	}
	return m.SenderID
}

func (sv *SearchView) partnerName(m api.Message) string {
	id := partner(m, sv.ownerID())
	if name := sv.names(id); name != "" {
		return name
	}
	return fmt.Sprint(id)
}

// SelectedResult returns the partner and message id of the selected hit.
func (sv *SearchView) SelectedResult() (otherID, messageID int64, ok bool) {
	row, _ := sv.results.GetSelection()
	idx := row - 1
	if idx < 0 || idx >= len(sv.data) {
		return 0, 0, false
	}
	m := sv.data[idx].Message
	return partner(m, sv.ownerID()), m.ID, true
}

// Input returns the query field.
func (sv *SearchView) Input() *tview.InputField { return sv.input }

// Results returns the results table.
func (sv *SearchView) Results() *tview.Table { return sv.results }
