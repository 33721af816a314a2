package tui

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/freightdesk/internal/api/apiv1"
	"github.com/matheus3301/freightdesk/internal/chat"
	"github.com/matheus3301/freightdesk/internal/client"
	"github.com/matheus3301/freightdesk/internal/tui/model"
	"github.com/matheus3301/freightdesk/internal/tui/ui"
	"github.com/matheus3301/freightdesk/internal/tui/views"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

const (
	pageConversations = "conversations"
	pageChat          = "chat"
	pageShipment      = "shipment"
	pageHelp          = "help"
)

const (
	refreshInterval = 5 * time.Second
	maxWatchBackoff = 30 * time.Second
)

// Options configures the TUI.
type Options struct {
	Client   *client.Client
	Instance string
	UserID   string
	Logger   *zap.Logger
	// OnLogin is called after ":login" switched the user.
	OnLogin func(userID string)
}

// App is the main TUI application shell.
type App struct {
	app        *tview.Application
	theme      *ui.Theme
	pages      *ui.Pages
	body       *tview.Flex
	menu       *ui.Menu
	info       *ui.DeskInfo
	prompt     *ui.Prompt
	flash      *ui.FlashModel
	flashBar   *ui.FlashBar
	statusBar  *views.StatusBar
	convList   *views.ConversationList
	thread     *views.MessageThread
	shipment   *views.ShipmentInfo
	help       *views.HelpView
	components map[string]ui.Component

	vm       *model.ViewModel
	client   *client.Client
	instance string
	logger   *zap.Logger
	onLogin  func(string)

	mu          sync.Mutex
	userID      string
	session     *chat.Session
	live        bool
	watchCancel context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(opts Options) *App {
	ctx, cancel := context.WithCancel(context.Background())
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	theme := ui.DefaultTheme()

	a := &App{
		app:       tview.NewApplication(),
		theme:     theme,
		pages:     ui.NewPages(),
		menu:      ui.NewMenu(theme),
		info:      ui.NewDeskInfo(theme),
		prompt:    ui.NewPrompt(theme),
		flash:     ui.NewFlashModel(),
		flashBar:  ui.NewFlashBar(theme),
		statusBar: views.NewStatusBar(theme),
		convList:  views.NewConversationList(theme),
		thread:    views.NewMessageThread(theme),
		shipment:  views.NewShipmentInfo(theme),
		help:      views.NewHelpView(theme),
		vm:        model.NewViewModel(opts.Client),
		client:    opts.Client,
		instance:  opts.Instance,
		logger:    opts.Logger,
		onLogin:   opts.OnLogin,
		userID:    opts.UserID,
		ctx:       ctx,
		cancel:    cancel,
	}
	a.components = map[string]ui.Component{
		pageConversations: a.convList,
		pageChat:          a.thread,
		pageShipment:      a.shipment,
		pageHelp:          a.help,
	}

	a.statusBar.SetIdentity(opts.Instance, opts.UserID)
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupCallbacks() {
	a.convList.SetSelectedFunc(func(row, _ int) {
		if c := a.convList.ByIndex(row); c != nil {
			a.openChat(*c)
		}
	})

	a.thread.SetOnSend(a.send)

	a.prompt.SetOnChange(func(mode ui.PromptMode, text string) {
		if mode == ui.PromptFilter {
			a.convList.SetFilter(text)
		}
	})
	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		if mode == ui.PromptCommand {
			a.runCommand(ParseCommand(text))
		}
	})
	a.prompt.SetOnCancel(func() {
		if a.prompt.Mode() == ui.PromptFilter {
			a.convList.SetFilter("")
		}
		a.hidePrompt()
	})

	a.pages.SetOnChange(func(top string) {
		if c, ok := a.components[top]; ok {
			a.menu.Update(c.Hints())
		}
	})
}

func (a *App) setupLayout() {
	a.pages.AddPage(pageConversations, a.convList, true, false)
	a.pages.AddPage(pageChat, a.thread, true, false)
	a.pages.AddPage(pageShipment, a.shipment, true, false)
	a.pages.AddPage(pageHelp, a.help, true, false)
	a.pages.Reset(pageConversations)

	header := tview.NewFlex().
		AddItem(a.info, 34, 0, false).
		AddItem(a.menu, 0, 1, false)

	a.body = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.pages, 0, 1, true)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 6, 0, false).
		AddItem(a.body, 0, 1, true).
		AddItem(a.flashBar, 1, 0, false).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)
	a.app.SetInputCapture(a.handleKey)
	a.renderInfo()
}

func (a *App) handleKey(ev *tcell.EventKey) *tcell.EventKey {
	focused := a.app.GetFocus()

	if ev.Key() == tcell.KeyEscape {
		switch focused {
		case a.prompt.InputField:
			return ev
		case a.thread.Composer():
			a.app.SetFocus(a.thread.Messages())
			return nil
		}
		if a.back() {
			return nil
		}
		return ev
	}

	// Text inputs get every other key.
	if _, ok := focused.(*tview.InputField); ok {
		return ev
	}
	if ev.Key() != tcell.KeyRune {
		return ev
	}

	switch ev.Rune() {
	case 'q':
		a.Stop()
		return nil
	case '?':
		a.pages.Push(pageHelp)
		a.focusPage()
		return nil
	case ':':
		a.showPrompt(ui.PromptCommand)
		return nil
	}

	switch a.pages.Current() {
	case pageConversations:
		switch r := ev.Rune(); {
		case r == '/':
			a.showPrompt(ui.PromptFilter)
			return nil
		case r == 'r':
			go a.reloadConversations()
			return nil
		case r >= '1' && r <= '9':
			if c := a.convList.ByIndex(int(r - '0')); c != nil {
				a.openChat(*c)
			}
			return nil
		}
	case pageChat:
		switch ev.Rune() {
		case 'i':
			a.app.SetFocus(a.thread.Composer())
			return nil
		case 'd':
			a.showShipment()
			return nil
		case 'r':
			if s := a.currentSession(); s != nil {
				go a.syncChat(s)
			}
			return nil
		}
	}
	return ev
}

func (a *App) showPrompt(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	if mode == ui.PromptFilter {
		a.prompt.SetText(a.convList.Filter())
	}
	a.body.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.body.ResizeItem(a.prompt, 0, 0)
	a.focusPage()
}

func (a *App) focusPage() {
	switch a.pages.Current() {
	case pageChat:
		a.app.SetFocus(a.thread.Messages())
	case pageShipment:
		a.app.SetFocus(a.shipment)
	case pageHelp:
		a.app.SetFocus(a.help)
	default:
		a.app.SetFocus(a.convList)
	}
}

// back pops one page; leaving the chat page closes its session.
func (a *App) back() bool {
	left := a.pages.Pop()
	if left == "" {
		return false
	}
	if left == pageChat {
		a.closeChat()
	}
	a.focusPage()
	return true
}

func (a *App) currentSession() *chat.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

func (a *App) currentUser() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.userID
}

func (a *App) openChat(conv apiv1.Conversation) {
	s := chat.NewSession(conv.ID, a.client, chat.Hooks{
		Refresh:  a.refreshUnread,
		Reload:   func() { go a.reloadConversations() },
		OnChange: func() { a.app.QueueUpdateDraw(a.renderChat) },
	}, a.logger)

	a.mu.Lock()
	a.session = s
	a.mu.Unlock()

	a.thread.ClearComposer()
	a.thread.Update(a.currentUser(), nil)
	a.renderChat()
	a.pages.Push(pageChat)
	a.focusPage()

	go func() {
		if err := a.vm.Activate(a.ctx, conv.ID); err != nil {
			a.logger.Debug("load shipment header", zap.Error(err))
		}
		if err := s.Open(a.ctx); err != nil {
			a.flash.Err(fmt.Errorf("open chat: %w", err))
		}
		a.app.QueueUpdateDraw(a.renderChat)
	}()
}

func (a *App) closeChat() {
	a.mu.Lock()
	a.session = nil
	a.mu.Unlock()
	a.vm.Deactivate()
}

func (a *App) renderChat() {
	s := a.currentSession()
	if s == nil {
		return
	}
	name := s.ConversationID()
	if c, ok := a.vm.Conversation(s.ConversationID()); ok && c.OtherPartyName != "" {
		name = c.OtherPartyName
	}
	if sh := a.vm.Shipment(); sh != nil {
		name = fmt.Sprintf("%s | %s -> %s", name, sh.OriginCity, sh.DestinationCity)
	}
	a.thread.SetHeader(name, s.State())
	if s.State() != chat.Loading {
		a.thread.Update(a.currentUser(), s.Messages())
	}
}

func (a *App) send(text string) {
	s := a.currentSession()
	if s == nil {
		return
	}
	go func() {
		_, err := s.Send(a.ctx, text)
		a.app.QueueUpdateDraw(func() {
			switch {
			case errors.Is(err, chat.ErrSendInFlight):
				a.flash.Warn("Still sending the previous message")
			case err != nil:
				a.flash.Err(fmt.Errorf("send failed: %w", err))
			case a.currentSession() == s:
				a.thread.ClearComposer()
			}
		})
	}()
}

func (a *App) syncChat(s *chat.Session) {
	if err := s.Sync(a.ctx); err != nil {
		a.flash.Err(fmt.Errorf("reload chat: %w", err))
	}
}

func (a *App) showShipment() {
	s := a.currentSession()
	if s == nil {
		return
	}
	a.renderShipment()
	a.pages.Push(pageShipment)
	a.focusPage()
}

func (a *App) renderShipment() {
	var conv *apiv1.Conversation
	if s := a.currentSession(); s != nil {
		if c, ok := a.vm.Conversation(s.ConversationID()); ok {
			conv = &c
		}
	}
	a.shipment.Update(a.vm.Shipment(), conv)
}

func (a *App) reloadConversations() {
	if err := a.vm.LoadConversations(a.ctx); err != nil && a.ctx.Err() == nil {
		a.flash.Err(fmt.Errorf("load conversations: %w", err))
	}
}

// refreshUnread fetches the count directly while the live stream is down.
func (a *App) refreshUnread() {
	a.mu.Lock()
	live := a.live
	a.mu.Unlock()
	if live {
		return
	}
	go func() {
		if err := a.vm.LoadUnread(a.ctx); err != nil {
			a.logger.Debug("load unread", zap.Error(err))
		}
	}()
}

func (a *App) onUnread(n int, live bool) {
	prev := a.vm.Unread()
	changed := a.vm.SetUnread(n)
	a.mu.Lock()
	a.live = live
	a.mu.Unlock()

	a.app.QueueUpdateDraw(func() {
		a.statusBar.SetUnread(n, live)
		a.renderInfo()
	})
	if !changed {
		return
	}
	go a.reloadConversations()
	if n > prev {
		if s := a.currentSession(); s != nil {
			go a.syncChat(s)
		}
	}
}

// watchUnread keeps the live unread stream open, reconnecting with backoff.
func (a *App) watchUnread(ctx context.Context) {
	backoff := time.Second
	for {
		err := a.client.WatchUnread(ctx, func(n int) {
			backoff = time.Second
			a.onUnread(n, true)
		})
		if ctx.Err() != nil {
			return
		}
		a.logger.Warn("unread stream lost", zap.Error(err), zap.Duration("retry_in", backoff))
		a.mu.Lock()
		a.live = false
		a.mu.Unlock()
		a.app.QueueUpdateDraw(func() {
			a.statusBar.SetUnread(a.vm.Unread(), false)
		})

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxWatchBackoff)
	}
}

func (a *App) startWatch() {
	ctx, cancel := context.WithCancel(a.ctx)
	a.mu.Lock()
	if a.watchCancel != nil {
		a.watchCancel()
	}
	a.watchCancel = cancel
	a.mu.Unlock()
	go a.watchUnread(ctx)
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "":
	case "q", "quit":
		a.Stop()
	case "h", "help":
		a.pages.Push(pageHelp)
		a.focusPage()
	case "read":
		s := a.currentSession()
		if s == nil {
			a.flash.Warn("No chat open")
			return
		}
		go func() {
			n, err := a.client.MarkMessagesAsRead(a.ctx, s.ConversationID())
			if err != nil {
				a.flash.Err(err)
				return
			}
			a.flash.Info(fmt.Sprintf("Marked %d message(s) read", n))
		}()
	case "ship":
		if len(cmd.Args) != 2 {
			a.flash.Warn("usage: :ship <from> <to>")
			return
		}
		go func() {
			s, err := a.client.PostShipment(a.ctx, cmd.Args[0], cmd.Args[1])
			if err != nil {
				a.flash.Err(err)
				return
			}
			a.flash.Info("Posted " + s.ID)
		}()
	case "assign":
		if len(cmd.Args) != 2 {
			a.flash.Warn("usage: :assign <shipment> <transporter>")
			return
		}
		go func() {
			if err := a.client.AssignTransporter(a.ctx, cmd.Args[0], cmd.Args[1]); err != nil {
				a.flash.Err(err)
				return
			}
			a.flash.Info("Assigned " + cmd.Args[1])
			a.reloadConversations()
		}()
	case "login":
		if len(cmd.Args) != 1 {
			a.flash.Warn("usage: :login <user>")
			return
		}
		go a.switchUser(cmd.Args[0])
	default:
		a.flash.Warn("Unknown command: " + cmd.Name)
	}
}

func (a *App) switchUser(userID string) {
	if err := a.client.Login(a.ctx, userID); err != nil {
		a.flash.Err(fmt.Errorf("login: %w", err))
		return
	}
	a.mu.Lock()
	a.userID = userID
	a.mu.Unlock()
	if a.onLogin != nil {
		a.onLogin(userID)
	}

	a.app.QueueUpdateDraw(func() {
		a.closeChat()
		a.pages.Reset(pageConversations)
		a.focusPage()
		a.statusBar.SetIdentity(a.instance, userID)
	})
	a.flash.Info("Logged in as " + userID)
	a.reloadConversations()
	a.startWatch()
}

func (a *App) renderInfo() {
	a.info.Update(ui.DeskData{
		Instance:      a.instance,
		User:          a.currentUser(),
		State:         a.vm.State(),
		Conversations: len(a.vm.Conversations()),
		Unread:        a.vm.Unread(),
	})
}

// renderModel redraws everything backed by the view model.
func (a *App) renderModel() {
	a.convList.Update(a.vm.Conversations())
	a.statusBar.SetState(a.vm.State())
	a.renderInfo()
	switch a.pages.Current() {
	case pageChat:
		a.renderChat()
	case pageShipment:
		a.renderShipment()
	}
}

// Run starts the TUI and blocks until it exits.
func (a *App) Run() error {
	go a.loop()
	defer a.cancel()
	return a.app.Run()
}

func (a *App) loop() {
	_ = a.vm.LoadState(a.ctx)
	a.reloadConversations()
	a.startWatch()

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.vm.RefreshCh():
			a.app.QueueUpdateDraw(a.renderModel)
		case m := <-a.flash.Watch():
			a.app.QueueUpdateDraw(func() { a.flashBar.Update(&m) })
		case <-ticker.C:
			_ = a.vm.LoadState(a.ctx)
			a.reloadConversations()
			a.refreshUnread()
			a.app.QueueUpdateDraw(func() { a.flashBar.Update(a.flash.Current()) })
		case <-a.ctx.Done():
			return
		}
	}
}

// Stop shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
