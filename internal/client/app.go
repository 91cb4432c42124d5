package client

import (
	"fmt"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/fenggwsx/DriftChat/chat"
	"github.com/fenggwsx/DriftChat/internal/config"
)

const lobbyChannelURL = "driftchat_lobby"

// App implements the bubbletea tea.Model interface for the terminal
// demo client. It connects as the configured user, joins the lobby
// channel and mirrors live channel events into the viewport.
type App struct {
	cfg     config.ClientConfig
	sdk     *chat.Client
	channel *chat.GroupChannel

	events   chan tea.Msg
	lines    []string
	logLine  string
	typing   string
	viewport viewport.Model
	input    textinput.Model
	width    int
	height   int
	ready    bool
	styles   styles
}

type (
	connectedMsg struct{ user *chat.User }
	joinedMsg    struct{ channel *chat.GroupChannel }
	historyMsg   struct{ messages []*chat.Message }
	lineMsg      struct{ text string }
	statusMsg    struct{ text string }
	typingMsg    struct{ text string }
	errMsg       struct{ err *chat.Error }
)

// NewApp returns a Bubble Tea model wired to the given SDK client.
func NewApp(cfg config.ClientConfig, sdk *chat.Client) *App {
	input := textinput.New()
	input.Placeholder = "Type a message and press Enter"
	input.Focus()

	app := &App{
		cfg:      cfg,
		sdk:      sdk,
		events:   make(chan tea.Msg, 64),
		lines:    make([]string, 0, 128),
		viewport: viewport.New(0, 0),
		input:    input,
		styles:   newStyles(),
	}
	sdk.AddChannelHandler("demo-app", &channelEvents{app: app})
	sdk.AddConnectionHandler("demo-app", &connectionEvents{app: app})
	return app
}

// Init is part of the tea.Model interface.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.connectCmd(), a.waitForEvent(), textinput.Blink)
}

// Update is part of the tea.Model interface.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
		a.viewport.Width = msg.Width
		a.viewport.Height = msg.Height - 4
		a.input.Width = msg.Width - 4
		a.ready = true
		a.refreshViewport()
		return a, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			done := make(chan struct{})
			a.sdk.Disconnect(func() { close(done) })
			<-done
			return a, tea.Quit
		case tea.KeyEnter:
			text := a.input.Value()
			a.input.Reset()
			if text != "" && a.channel != nil {
				a.sendMessage(text)
			}
			return a, nil
		}

	case connectedMsg:
		a.logLine = fmt.Sprintf("connected as %s", msg.user.UserID)
		return a, tea.Batch(a.joinLobbyCmd(), a.waitForEvent())

	case joinedMsg:
		a.channel = msg.channel
		a.logLine = fmt.Sprintf("joined %s", msg.channel.Name)
		return a, tea.Batch(a.loadHistoryCmd(), a.waitForEvent())

	case historyMsg:
		for i := len(msg.messages) - 1; i >= 0; i-- {
			a.appendMessage(msg.messages[i])
		}
		a.refreshViewport()
		if a.channel != nil {
			a.channel.MarkAsRead(nil)
		}
		return a, a.waitForEvent()

	case lineMsg:
		a.lines = append(a.lines, msg.text)
		a.refreshViewport()
		return a, a.waitForEvent()

	case statusMsg:
		a.logLine = msg.text
		return a, a.waitForEvent()

	case typingMsg:
		a.typing = msg.text
		return a, a.waitForEvent()

	case errMsg:
		a.logLine = a.styles.err.Render(msg.err.Error())
		return a, a.waitForEvent()
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

// waitForEvent re-arms the bridge pulling SDK callbacks into the
// bubbletea loop.
func (a *App) waitForEvent() tea.Cmd {
	return func() tea.Msg { return <-a.events }
}

func (a *App) post(msg tea.Msg) {
	select {
	case a.events <- msg:
	default:
	}
}

func (a *App) connectCmd() tea.Cmd {
	return func() tea.Msg {
		a.sdk.Connect(a.cfg.UserID, a.cfg.AuthToken, func(user *chat.User, err *chat.Error) {
			if err != nil {
				a.post(errMsg{err: err})
				return
			}
			a.post(connectedMsg{user: user})
		})
		return statusMsg{text: "connecting..."}
	}
}

func (a *App) joinLobbyCmd() tea.Cmd {
	return func() tea.Msg {
		params := chat.GroupChannelParams{
			ChannelURL: lobbyChannelURL,
			Name:       "Lobby",
			IsPublic:   true,
			UserIDs:    []string{a.cfg.UserID},
		}
		a.sdk.CreateGroupChannel(params, func(channel *chat.GroupChannel, err *chat.Error) {
			if err != nil {
				a.post(errMsg{err: err})
				return
			}
			a.post(joinedMsg{channel: channel})
		})
		return nil
	}
}

func (a *App) loadHistoryCmd() tea.Cmd {
	return func() tea.Msg {
		query := a.channel.CreatePreviousMessageListQuery()
		query.LoadNextPage(func(messages []*chat.Message, err *chat.Error) {
			if err != nil {
				a.post(errMsg{err: err})
				return
			}
			a.post(historyMsg{messages: messages})
		})
		return nil
	}
}

func (a *App) sendMessage(text string) {
	pending := a.channel.SendUserMessage(chat.NewUserMessageParams(text),
		func(msg *chat.Message, err *chat.Error) {
			if err != nil {
				a.post(errMsg{err: err})
				return
			}
			a.post(statusMsg{text: fmt.Sprintf("delivered #%d", msg.MessageID)})
		})
	if pending != nil {
		a.appendMessage(pending)
		a.refreshViewport()
	}
}

func (a *App) appendMessage(m *chat.Message) {
	a.lines = append(a.lines, a.renderMessage(m))
}

// channelEvents bridges SDK channel callbacks onto the event channel.
type channelEvents struct {
	chat.ChannelHandlerAdapter
	app *App
}

func (e *channelEvents) MessageReceived(channel chat.Channel, message *chat.Message) {
	if e.app.channel == nil || channel.ChannelURL() != e.app.channel.URL {
		return
	}
	e.app.post(lineMsg{text: e.app.renderMessage(message)})
}

func (e *channelEvents) MessageDeleted(channel chat.Channel, messageID int64) {
	e.app.post(statusMsg{text: fmt.Sprintf("message #%d deleted", messageID)})
}

func (e *channelEvents) TypingStatusUpdated(channel *chat.GroupChannel) {
	users := channel.GetTypingUsers()
	if len(users) == 0 {
		e.app.post(typingMsg{})
		return
	}
	e.app.post(typingMsg{text: fmt.Sprintf("%s is typing...", users[0].Nickname)})
}

func (e *channelEvents) ChannelDeleted(channelURL string, _ chat.ChannelType) {
	e.app.post(statusMsg{text: fmt.Sprintf("channel %s was deleted", channelURL)})
}

// connectionEvents surfaces the reconnect cycle in the status line.
type connectionEvents struct {
	chat.ConnectionHandlerAdapter
	app *App
}

func (e *connectionEvents) ReconnectStarted() {
	e.app.post(statusMsg{text: "connection lost, reconnecting..."})
}

func (e *connectionEvents) ReconnectSucceeded() {
	e.app.post(statusMsg{text: "reconnected"})
}

func (e *connectionEvents) ReconnectFailed() {
	e.app.post(statusMsg{text: "reconnect failed, retrying"})
}
