package ui

import (
	"fmt"

	"github.com/rivo/tview"
)

// DeskData is what the header shows about the current desk.
type DeskData struct {
	Instance      string
	User          string
	State         string
	Conversations int
	Unread        int
}

// DeskInfo is the header panel with instance and user details.
type DeskInfo struct {
	*tview.TextView
	theme *Theme
}

// NewDeskInfo creates an empty header panel.
func NewDeskInfo(theme *Theme) *DeskInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)
	return &DeskInfo{TextView: tv, theme: theme}
}

// Update renders data.
func (di *DeskInfo) Update(data DeskData) {
	di.Clear()

	fg := ColorName(di.theme.FgColor)
	ct := ColorName(di.theme.CounterColor)
	unread := ct
	if data.Unread > 0 {
		unread = ColorName(di.theme.UnreadColor)
	}
	state := data.State
	if state == "" {
		state = "-"
	}

	_, _ = fmt.Fprintf(di,
		"[%s::b]Instance:[-:-:-] [%s]%s[-]\n"+
			"[%s::b]User:[-:-:-]     [%s]%s[-]\n"+
			"[%s::b]Daemon:[-:-:-]   [%s]%s[-]\n"+
			"[%s::b]Chats:[-:-:-]    [%s]%d[-]\n"+
			"[%s::b]Unread:[-:-:-]   [%s::b]%d[-:-:-]",
		fg, ct, tview.Escape(data.Instance),
		fg, ct, tview.Escape(data.User),
		fg, ct, state,
		fg, ct, data.Conversations,
		fg, unread, data.Unread,
	)
}
