package views

import (
	"fmt"

	"github.com/matheus3301/freightdesk/internal/api/apiv1"
	"github.com/matheus3301/freightdesk/internal/tui/ui"
	"github.com/rivo/tview"
)

// ShipmentInfo shows the shipment behind the open conversation.
type ShipmentInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewShipmentInfo creates an empty details page.
func NewShipmentInfo(theme *ui.Theme) *ShipmentInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Shipment ")
	tv.SetTitleColor(theme.TitleColor)
	return &ShipmentInfo{TextView: tv, theme: theme}
}

// Name implements ui.Component.
func (si *ShipmentInfo) Name() string { return "Shipment" }

// Hints implements ui.Component.
func (si *ShipmentInfo) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
		{Key: "?", Description: "Help"},
	}
}

// Update renders the shipment header and the conversation row it belongs to.
func (si *ShipmentInfo) Update(s *apiv1.ChatShipment, conv *apiv1.Conversation) {
	si.Clear()
	if s == nil {
		_, _ = fmt.Fprint(si, "\n [::d]Loading...[-:-:-]")
		return
	}

	fg := ui.ColorName(si.theme.FgColor)
	ct := ui.ColorName(si.theme.CounterColor)

	with := s.OtherPartyName
	if s.OtherPartyRole != "" {
		with = fmt.Sprintf("%s (%s)", with, s.OtherPartyRole)
	}
	unread := 0
	if conv != nil {
		unread = conv.UnreadCount
	}

	_, _ = fmt.Fprintf(si,
		"\n [%s::b]Shipment:[-:-:-]    [%s]%s[-]\n"+
			" [%s::b]From:[-:-:-]        [%s]%s[-]\n"+
			" [%s::b]To:[-:-:-]          [%s]%s[-]\n"+
			" [%s::b]With:[-:-:-]        [%s]%s[-]\n"+
			" [%s::b]Unread:[-:-:-]      [%s]%d[-]",
		fg, ct, tview.Escape(s.ID),
		fg, ct, clean(s.OriginCity),
		fg, ct, clean(s.DestinationCity),
		fg, ct, clean(with),
		fg, ct, unread,
	)
	si.SetTitle(fmt.Sprintf(" Shipment %s ", tview.Escape(s.ID)))
}
