package views

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/freightdesk/internal/api/apiv1"
	"github.com/matheus3301/freightdesk/internal/chat"
	"github.com/matheus3301/freightdesk/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConversationList is the main page: one row per shipment conversation with
// its unread badge.
type ConversationList struct {
	*tview.Table
	theme  *ui.Theme
	convs  []apiv1.Conversation
	filter string
	now    func() time.Time
}

// NewConversationList creates an empty list.
func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitleColor(theme.TitleColor)

	cl := &ConversationList{Table: table, theme: theme, now: time.Now}
	cl.render()
	return cl
}

// Name implements ui.Component.
func (cl *ConversationList) Name() string { return "Conversations" }

// Hints implements ui.Component.
func (cl *ConversationList) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Open"},
		{Key: "/", Description: "Filter"},
		{Key: ":", Description: "Command"},
		{Key: "r", Description: "Reload"},
		{Key: "?", Description: "Help"},
		{Key: "q", Description: "Quit"},
		{Key: "1-9", Description: "Jump", Numeric: true},
	}
}

// Update replaces the listed conversations, keeping the cursor on the same
// conversation when it is still listed.
func (cl *ConversationList) Update(convs []apiv1.Conversation) {
	selected := cl.Selected()
	cl.convs = convs
	cl.render()
	if selected == nil {
		return
	}
	for i, c := range cl.visible() {
		if c.ID == selected.ID {
			cl.Select(i+1, 0)
			return
		}
	}
}

// SetFilter narrows the list to conversations whose party name or last
// message contains filter, case-insensitively.
func (cl *ConversationList) SetFilter(filter string) {
	cl.filter = strings.TrimSpace(filter)
	cl.render()
	cl.Select(1, 0)
}

// Filter returns the active filter.
func (cl *ConversationList) Filter() string { return cl.filter }

func (cl *ConversationList) visible() []apiv1.Conversation {
	if cl.filter == "" {
		return cl.convs
	}
	needle := strings.ToLower(cl.filter)
	var out []apiv1.Conversation
	for _, c := range cl.convs {
		if strings.Contains(strings.ToLower(c.OtherPartyName), needle) ||
			strings.Contains(strings.ToLower(c.LastMessagePreview), needle) {
			out = append(out, c)
		}
	}
	return out
}

func (cl *ConversationList) render() {
	cl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" WITH", 1},
		{" LAST MESSAGE", 2},
		{" TIME", 0},
		{" UNREAD", 0},
	}
	for col, h := range headers {
		cl.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetBackgroundColor(cl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	now := cl.now()
	rows := cl.visible()
	for i, c := range rows {
		row := i + 1
		name := c.OtherPartyName
		if name == "" {
			name = c.OtherPartyID
		}
		when := ""
		if c.LastMessageAt != nil {
			when = chat.TimeLabel(now, *c.LastMessageAt)
		}
		badge := tview.NewTableCell("").SetAlign(tview.AlignRight)
		if c.UnreadCount > 0 {
			badge.SetText(strconv.Itoa(c.UnreadCount) + " ").
				SetTextColor(cl.theme.UnreadColor).
				SetAttributes(tcell.AttrBold)
		}

		fg := cl.theme.FgColor
		cl.SetCell(row, 0, tview.NewTableCell(" "+clean(name)).SetExpansion(1).SetTextColor(fg))
		cl.SetCell(row, 1, tview.NewTableCell(" "+clean(c.LastMessagePreview)).SetExpansion(2).SetTextColor(fg))
		cl.SetCell(row, 2, tview.NewTableCell(when+" ").SetTextColor(fg).SetAlign(tview.AlignRight))
		cl.SetCell(row, 3, badge)
	}

	if cl.filter != "" {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d/%d) filter: %s ", len(rows), len(cl.convs), tview.Escape(cl.filter)))
	} else {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d) ", len(cl.convs)))
	}
}

// Selected returns the conversation under the cursor.
func (cl *ConversationList) Selected() *apiv1.Conversation {
	row, _ := cl.GetSelection()
	return cl.ByIndex(row)
}

// ByIndex returns the Nth visible conversation (1-based).
func (cl *ConversationList) ByIndex(n int) *apiv1.Conversation {
	rows := cl.visible()
	if n < 1 || n > len(rows) {
		return nil
	}
	c := rows[n-1]
	return &c
}
