// Package tui is the terminal client for a running dialdesk daemon.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/mzahid/dialdesk/internal/tui/client"
	"github.com/mzahid/dialdesk/internal/tui/keys"
	"github.com/mzahid/dialdesk/internal/tui/model"
	"github.com/mzahid/dialdesk/internal/tui/views"
)

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	vm        *model.ViewModel
	api       *client.Client
	registry  *keys.Registry
	statusBar *views.StatusBar
	convList  *views.ConversationList
	msgView   *views.MessageView
	composer  *views.Composer
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(c *client.Client, profileName string, loc *time.Location) *App {
	ctx, cancel := context.WithCancel(context.Background())
	vm := model.NewViewModel(c)

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		vm:        vm,
		api:       c,
		registry:  keys.NewRegistry(),
		statusBar: views.NewStatusBar(),
		convList:  views.NewConversationList(loc),
		msgView:   views.NewMessageView(loc),
		composer:  views.NewComposer(),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetProfile(profileName)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("quit", &keys.Action{
		Rune: 'q', Key: tcell.KeyRune,
		Description: "q:quit", Visible: true,
		Handler: func() { a.Stop() },
	})
	a.registry.AddGlobal("sync", &keys.Action{
		Rune: 's', Key: tcell.KeyRune,
		Description: "s:sync", Visible: true,
		Handler: func() { a.syncNow() },
	})
}

func (a *App) setupCallbacks() {
	a.convList.SetSelectedFunc(func(row, col int) {
		id := a.convList.SelectedConversation()
		if id != "" {
			a.openConversation(id)
		}
	})

	a.composer.SetOnSend(func(text string) {
		conv := a.vm.ActiveConversation()
		if conv == nil {
			return
		}
		phone := conv.Phone
		go func() {
			if err := a.vm.SendText(a.ctx, phone, text); err != nil {
				a.vm.Flash.Set("Send failed: "+err.Error(), 5*time.Second)
			}
			a.refresh()
		}()
	})
}

func (a *App) setupLayout() {
	convFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.msgView, 0, 1, false).
		AddItem(a.composer, 1, 0, false)

	a.pages.AddPage("inbox", a.convList, true, true)
	a.pages.AddPage("conversation", convFlex, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		if event.Key() == tcell.KeyEscape && currentPage == "conversation" {
			a.vm.CloseConversation()
			a.pages.SwitchToPage("inbox")
			a.app.SetFocus(a.convList)
			return nil
		}

		// Let text input widgets handle all keys normally.
		focused := a.app.GetFocus()
		if _, ok := focused.(*tview.InputField); ok {
			return event
		}

		// 'i' focuses the composer (only when not already in an input field).
		if currentPage == "conversation" && event.Key() == tcell.KeyRune && event.Rune() == 'i' {
			a.app.SetFocus(a.composer.InputField)
			return nil
		}

		if a.registry.HandleEvent(currentPage, event) {
			return nil
		}

		return event
	})
}

func (a *App) openConversation(id string) {
	go func() {
		conv, err := a.vm.OpenConversation(a.ctx, id)
		if err != nil {
			a.vm.Flash.Set("Open failed: "+err.Error(), 5*time.Second)
			return
		}
		name := conv.Name
		if name == "" {
			name = conv.Phone
		}
		a.app.QueueUpdateDraw(func() {
			a.msgView.SetContactName(name)
			a.msgView.Update(conv)
			a.pages.SwitchToPage("conversation")
			a.app.SetFocus(a.msgView)
		})
	}()
}

func (a *App) syncNow() {
	go func() {
		a.app.QueueUpdateDraw(func() { a.statusBar.SetSyncing(true) })
		if err := a.vm.SyncNow(a.ctx); err != nil {
			a.vm.Flash.Set("Sync failed: "+err.Error(), 5*time.Second)
		}
		_ = a.vm.LoadConversations(a.ctx)
		a.app.QueueUpdateDraw(func() {
			a.statusBar.SetSyncing(false)
			a.convList.Update(a.vm.GetConversations())
			a.statusBar.SetFlash(a.vm.Flash.Get())
		})
	}()
}

// refresh reloads daemon state and redraws whichever page is in front.
func (a *App) refresh() {
	_ = a.vm.LoadConversations(a.ctx)
	_ = a.vm.LoadStatus(a.ctx)
	a.app.QueueUpdateDraw(func() {
		currentPage, _ := a.pages.GetFrontPage()
		if currentPage == "inbox" {
			a.convList.Update(a.vm.GetConversations())
		} else if conv := a.vm.ActiveConversation(); conv != nil {
			a.msgView.Update(conv)
		}
		if st := a.vm.GetStatus(); st != nil {
			a.statusBar.SetState(st.State)
		}
		a.statusBar.SetFlash(a.vm.Flash.Get())
	})
}

// Run starts the TUI application.
func (a *App) Run() error {
	go func() {
		a.refresh()
		go a.watchEvents()
		a.startRefreshLoop()
	}()

	return a.app.Run()
}

// watchEvents follows the daemon's event feed and refreshes on inbox or
// status changes. The feed drops on daemon restarts; reconnect with a short
// pause until the app shuts down.
func (a *App) watchEvents() {
	for {
		events, err := a.api.Events(a.ctx)
		if err == nil {
			for evt := range events {
				switch {
				case strings.HasPrefix(evt.Type, "inbox."),
					evt.Type == "session.status_changed",
					evt.Type == "sync.completed":
					a.refresh()
				}
			}
		}

		select {
		case <-a.ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

// startRefreshLoop is the slow fallback poll behind the event feed; it also
// keeps the clock and flash expiry current.
func (a *App) startRefreshLoop() {
	ticker := time.NewTicker(10 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.refresh()
			case <-a.ctx.Done():
				return
			}
		}
	}()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
