package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/app/chat"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/app/session"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/cli/ui"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/domain"
)

// UI configuration constants
const (
	defaultInputWidth     = 100
	defaultViewportWidth  = 100
	defaultViewportHeight = 30
	defaultWindowWidth    = 100
	defaultWindowHeight   = 40
	inputCharLimit        = 4000
	inputHeightReserved   = 2
	statusHeightReserved  = 4
	minContentHeight      = 5
	sendTimeout           = 15 * time.Second
	toastTTL              = 5 * time.Second
)

var (
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	selfStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	peerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
)

// Conversation is what the chat screen needs from an open chat.
type Conversation interface {
	ChatID() domain.ChatID
	Send(ctx context.Context, in chat.SendInput) (*domain.OutboundMessage, error)
	Messages() []domain.DisplayedMessage
	Status() session.State
	Changes() <-chan struct{}
	Notices() <-chan chat.Notice
}

// ChatProgram encapsulates the chat TUI program
type ChatProgram struct {
	model chatModel
}

func NewChatProgram(conv Conversation, self domain.UserID) *ChatProgram {
	return &ChatProgram{model: initialModel(conv, self)}
}

// Run blocks until the user quits.
func (p *ChatProgram) Run() error {
	program := tea.NewProgram(p.model, tea.WithAltScreen())
	_, err := program.Run()
	return err
}

type chatModel struct {
	conv Conversation
	self domain.UserID
	done chan struct{}

	input       textinput.Model
	contentView viewport.Model
	spin        spinner.Model

	status  session.State
	sending int
	toast   string
	toastAt time.Time
	now     func() time.Time

	width  int
	height int
}

func initialModel(conv Conversation, self domain.UserID) chatModel {
	input := textinput.New()
	input.Placeholder = "Type a message"
	input.Focus()
	input.CharLimit = inputCharLimit
	input.Width = defaultInputWidth
	input.Prompt = ""

	contentViewport := viewport.New(defaultViewportWidth, defaultViewportHeight)
	contentViewport.SetContent("")

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = dimStyle

	m := chatModel{
		conv:        conv,
		self:        self,
		done:        make(chan struct{}),
		input:       input,
		contentView: contentViewport,
		spin:        spin,
		status:      conv.Status(),
		now:         time.Now,
		width:       defaultWindowWidth,
		height:      defaultWindowHeight,
	}
	m.refreshContent()
	return m
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spin.Tick, waitForChange(m.conv, m.done), waitForNotice(m.conv, m.done))
}

type (
	changedMsg struct{}
	noticeMsg  struct{ notice chat.Notice }
	sentMsg    struct{ err error }
)

// waitForChange turns the next redraw signal into a message.
func waitForChange(conv Conversation, done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-conv.Changes():
			return changedMsg{}
		case <-done:
			return nil
		}
	}
}

func waitForNotice(conv Conversation, done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		select {
		case n := <-conv.Notices():
			return noticeMsg{notice: n}
		case <-done:
			return nil
		}
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			close(m.done)
			return m, tea.Quit
		case tea.KeyEnter:
			if cmd := m.submit(); cmd != nil {
				cmds = append(cmds, cmd)
			}
		case tea.KeyUp:
			m.contentView.LineUp(1)
		case tea.KeyDown:
			m.contentView.LineDown(1)
		case tea.KeyPgUp:
			m.contentView.ViewUp()
		case tea.KeyPgDown:
			m.contentView.ViewDown()
		}

	case tea.WindowSizeMsg:
		m.handleWindowResize(msg)

	case changedMsg:
		m.status = m.conv.Status()
		m.refreshContent()
		cmds = append(cmds, waitForChange(m.conv, m.done))

	case noticeMsg:
		m.setToast(describeNotice(msg.notice))
		cmds = append(cmds, waitForNotice(m.conv, m.done))

	case sentMsg:
		m.sending--
		if msg.err != nil && !errors.Is(msg.err, domain.ErrDeliveryFailed) {
			// delivery failures already arrive as notices
			m.setToast(errorStyle.Render(fmt.Sprintf("send failed: %v", msg.err)))
		}
		m.refreshContent()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		m.status = m.conv.Status()
		if m.toast != "" && m.now().Sub(m.toastAt) > toastTTL {
			m.toast = ""
		}
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// submit sends the input line. The optimistic row shows up through the
// change signal, so the model only tracks how many sends are in flight.
func (m *chatModel) submit() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return nil
	}
	m.input.Reset()
	m.sending++

	conv, self := m.conv, m.self
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		_, err := conv.Send(ctx, chat.SendInput{
			SenderID:    self,
			Content:     text,
			MessageType: domain.MessageText,
		})
		return sentMsg{err: err}
	}
}

func (m *chatModel) setToast(s string) {
	m.toast = s
	m.toastAt = m.now()
}

func (m *chatModel) handleWindowResize(msg tea.WindowSizeMsg) {
	m.width = msg.Width
	m.height = msg.Height

	contentHeight := msg.Height - inputHeightReserved - statusHeightReserved
	if contentHeight < minContentHeight {
		contentHeight = minContentHeight
	}

	m.contentView.Width = msg.Width
	m.contentView.Height = contentHeight
	m.input.Width = msg.Width - 3

	m.refreshContent()
}

func (m *chatModel) refreshContent() {
	m.contentView.SetContent(renderTimeline(m.conv.Messages(), m.self, m.width))
	m.contentView.GotoBottom()
}

// renderTimeline draws one block per message, oldest first.
func renderTimeline(msgs []domain.DisplayedMessage, self domain.UserID, width int) string {
	if len(msgs) == 0 {
		return dimStyle.Render("No messages yet. Say hello!")
	}

	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}

		who := peerStyle.Render(string(msg.SenderID()))
		if msg.SenderID() == self {
			who = selfStyle.Render("You")
		}
		header := who + " " + dimStyle.Render(msg.Timestamp().Local().Format("15:04"))
		if !msg.IsConfirmed() {
			switch msg.DeliveryState() {
			case domain.DeliveryPending:
				header += " " + pendingStyle.Render("sending…")
			case domain.DeliverySent:
				header += " " + dimStyle.Render("✓")
			}
		}
		b.WriteString(header)
		b.WriteString("\n")
		b.WriteString(wrapLine(ui.MessageBody(msg.MessageType(), msg.Content(), msg.MediaURL()), width))
		b.WriteString("\n")
	}
	return b.String()
}

// wrapLine wraps text at width display cells, counting wide runes twice.
func wrapLine(line string, maxWidth int) string {
	if maxWidth <= 10 || runewidth.StringWidth(line) <= maxWidth {
		return line
	}

	var result strings.Builder
	var currentLine strings.Builder
	currentWidth := 0

	for _, r := range line {
		if r == '\n' {
			result.WriteString(currentLine.String())
			result.WriteString("\n")
			currentLine.Reset()
			currentWidth = 0
			continue
		}
		runeW := runewidth.RuneWidth(r)
		if currentWidth+runeW > maxWidth && currentWidth > 0 {
			result.WriteString(currentLine.String())
			result.WriteString("\n")
			currentLine.Reset()
			currentWidth = 0
		}
		currentLine.WriteRune(r)
		currentWidth += runeW
	}
	result.WriteString(currentLine.String())
	return result.String()
}

func describeNotice(n chat.Notice) string {
	switch n.Kind {
	case chat.NoticeDeliveryFailed:
		return errorStyle.Render(fmt.Sprintf("Not delivered: %q", truncate(n.Content, 30)))
	case chat.NoticePersistenceFailed:
		return errorStyle.Render("Delivered, but not saved to history")
	case chat.NoticePendingExpired:
		return errorStyle.Render(fmt.Sprintf("Gave up sending %q", truncate(n.Content, 30)))
	case chat.NoticeHistoryUnavailable:
		return errorStyle.Render("Could not load earlier messages")
	default:
		return ""
	}
}

func truncate(s string, n int) string {
	return runewidth.Truncate(s, n, "…")
}

func statusLine(st session.State, spin string) string {
	switch st {
	case session.Connected:
		return okStyle.Render("● connected")
	case session.Connecting:
		return dimStyle.Render(spin + " connecting")
	case session.Reconnecting:
		return dimStyle.Render(spin + " reconnecting")
	case session.RetryWait:
		return dimStyle.Render(spin + " offline, retrying")
	default:
		return dimStyle.Render("○ " + st.String())
	}
}

func (m chatModel) View() string {
	status := dimStyle.Render(fmt.Sprintf("chat %s • ", m.conv.ChatID())) + statusLine(m.status, m.spin.View())
	if m.sending > 0 {
		status += dimStyle.Render(fmt.Sprintf(" • sending %d", m.sending))
	}

	inputView := promptStyle.Render("> ") + m.input.View()
	help := dimStyle.Render("Enter send • ↑↓ scroll • Esc quit")

	parts := []string{status, m.toast, m.contentView.View(), "", inputView, help}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
