package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/freightdesk/internal/chat"
	"github.com/matheus3301/freightdesk/internal/store"
	"github.com/matheus3301/freightdesk/internal/tui/ui"
	"github.com/rivo/tview"
)

// MessageThread shows one conversation's history above a composer.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	composer *tview.InputField
	title    string
	onSend   func(text string)
	now      func() time.Time
}

// NewMessageThread creates an empty thread.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		composer: composer,
		now:      time.Now,
	}

	// The text stays in the composer until the send succeeds; ClearComposer
	// is called by the owner once it has.
	composer.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && mt.onSend != nil {
			if text := composer.GetText(); strings.TrimSpace(text) != "" {
				mt.onSend(text)
			}
		}
	})

	return mt
}

// Name implements ui.Component.
func (mt *MessageThread) Name() string {
	if mt.title != "" {
		return mt.title
	}
	return "Messages"
}

// Hints implements ui.Component.
func (mt *MessageThread) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "i", Description: "Compose"},
		{Key: "d", Description: "Shipment"},
		{Key: "r", Description: "Reload"},
		{Key: "Esc", Description: "Back"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
	}
}

// SetHeader sets the page name and the border title.
func (mt *MessageThread) SetHeader(name string, state chat.State) {
	mt.title = name
	suffix := ""
	switch state {
	case chat.Loading:
		suffix = " (loading)"
	case chat.Sending:
		suffix = " (sending)"
	}
	mt.messages.SetTitle(fmt.Sprintf(" %s%s ", tview.Escape(name), suffix))
}

// SetOnSend registers the composer submit callback.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// ClearComposer empties the composer.
func (mt *MessageThread) ClearComposer() {
	mt.composer.SetText("")
}

// SetDraft puts text back into the composer.
func (mt *MessageThread) SetDraft(text string) {
	mt.composer.SetText(text)
}

// Update renders msgs (oldest first) from userID's point of view.
func (mt *MessageThread) Update(userID string, msgs []store.Message) {
	mt.messages.Clear()
	_, _ = fmt.Fprint(mt.messages, FormatThread(mt.theme, userID, msgs, mt.now()))
	mt.messages.ScrollToEnd()
}

// Messages returns the history view, for focus handling.
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the composer, for focus handling.
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}

// FormatThread renders a conversation as tview markup.
func FormatThread(theme *ui.Theme, userID string, msgs []store.Message, now time.Time) string {
	if len(msgs) == 0 {
		return "\n  [::d]No messages yet. Press i to write the first one.[-:-:-]\n"
	}
	own := ui.ColorName(theme.OwnMessageColor)

	var b strings.Builder
	for _, m := range msgs {
		sender := clean(m.SenderID)
		color := "-"
		if m.SenderID == userID {
			sender = "You"
			color = own
		}
		fmt.Fprintf(&b, "[%s::b]%s[-:-:-] [::d]%s[-:-:-]\n%s\n\n",
			color, sender, chat.TimeLabel(now, m.CreatedAt), clean(m.Content))
	}
	return b.String()
}
