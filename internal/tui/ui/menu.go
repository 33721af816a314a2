package ui

import (
	"fmt"

	"github.com/rivo/tview"
)

// Menu lists the active page's shortcuts, one per line.
type Menu struct {
	*tview.TextView
	theme *Theme
}

// NewMenu creates an empty menu.
func NewMenu(theme *Theme) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 2, 0)
	return &Menu{TextView: tv, theme: theme}
}

// Update replaces the listed hints.
func (m *Menu) Update(hints []MenuHint) {
	m.Clear()
	_, _ = fmt.Fprint(m, FormatHints(m.theme, hints))
}

// FormatHints renders hints as tview markup.
func FormatHints(theme *Theme, hints []MenuHint) string {
	keyColor := ColorName(theme.MenuKeyColor)
	numColor := ColorName(theme.NumericKeyColor)

	var out string
	for _, h := range hints {
		kc := keyColor
		if h.Numeric {
			kc = numColor
		}
		out += fmt.Sprintf("[%s::b]<%s>[-:-:-] %s\n", kc, h.Key, h.Description)
	}
	return out
}
