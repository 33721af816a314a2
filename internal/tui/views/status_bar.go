package views

import (
	"fmt"
	"time"

	"github.com/matheus3301/freightdesk/internal/tui/ui"
	"github.com/rivo/tview"
)

// StatusBar is the bottom line: instance, user, daemon status and the live
// unread count.
type StatusBar struct {
	*tview.TextView
	theme    *ui.Theme
	instance string
	user     string
	state    string
	unread   int
	live     bool
	now      func() time.Time
}

// NewStatusBar creates an empty status bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)
	return &StatusBar{TextView: tv, theme: theme, now: time.Now}
}

// SetIdentity sets the instance and user shown on the left.
func (sb *StatusBar) SetIdentity(instance, user string) {
	sb.instance, sb.user = instance, user
	sb.render()
}

// SetState shows the daemon status.
func (sb *StatusBar) SetState(state string) {
	sb.state = state
	sb.render()
}

// SetUnread shows the unread count; live reports whether the count comes
// from the streaming connection or a one-off fetch.
func (sb *StatusBar) SetUnread(n int, live bool) {
	sb.unread, sb.live = n, live
	sb.render()
}

// Text returns the rendered line without markup handling, for tests.
func (sb *StatusBar) Text() string {
	return sb.GetText(true)
}

func (sb *StatusBar) render() {
	sb.Clear()

	liveIcon := "[::d]o[-:-:-]"
	if sb.live {
		liveIcon = "[green]*[-]"
	}
	unread := fmt.Sprintf("unread %d", sb.unread)
	if sb.unread > 0 {
		unread = fmt.Sprintf("[%s::b]unread %d[-:-:-]", ui.ColorName(sb.theme.UnreadColor), sb.unread)
	}

	_, _ = fmt.Fprintf(sb, " [::b]%s[-:-:-] | %s | %s | %s %s | %s",
		tview.Escape(sb.instance), tview.Escape(sb.user), sb.state, unread, liveIcon, sb.now().Format("15:04"))
}
