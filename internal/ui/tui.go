// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pni-chat/pni-tui/internal/controller"
	"github.com/pni-chat/pni-tui/internal/creds"
	"github.com/pni-chat/pni-tui/internal/export"
	"github.com/pni-chat/pni-tui/internal/model"
	"github.com/pni-chat/pni-tui/internal/util"
)

// =============================================================================
// SINK MESSAGES
// =============================================================================

// Controller events arrive as Bubble Tea messages so all mutation
// happens on the update loop.

type appendMsg struct{ msg model.Message }
type streamUpdateMsg struct{ buffer string }
type streamRemoveMsg struct{}
type streamFailedMsg struct{ partial, notice string }
type clearTranscriptMsg struct{}
type directoryChangedMsg struct{}
type selectionChangedMsg struct{ chatID string }
type streamingChangedMsg struct{ streaming bool }
type noticeMsg struct{ text string }

// opDoneMsg reports a controller operation finished in a worker goroutine.
type opDoneMsg struct{ err error }

// =============================================================================
// TUI SURFACE
// =============================================================================

// TUI is the full-screen surface. It implements controller.Sink by
// forwarding events into the program's update loop.
type TUI struct {
	program *tea.Program
}

// NewTUI builds the surface and its program.
func NewTUI(ctrl *controller.Controller, store *creds.Store, renderer *Renderer) *TUI {
	t := &TUI{}
	m := newTUIModel(ctrl, store, renderer)
	t.program = tea.NewProgram(m, tea.WithAltScreen())
	return t
}

// Run blocks until the user quits.
func (t *TUI) Run() error {
	_, err := t.program.Run()
	return err
}

func (t *TUI) AppendMessage(msg model.Message)    { t.program.Send(appendMsg{msg}) }
func (t *TUI) StreamUpdate(buffer string)         { t.program.Send(streamUpdateMsg{buffer}) }
func (t *TUI) StreamRemove()                      { t.program.Send(streamRemoveMsg{}) }
func (t *TUI) StreamFailed(partial, notice string) {
	t.program.Send(streamFailedMsg{partial, notice})
}
func (t *TUI) ClearTranscript()                { t.program.Send(clearTranscriptMsg{}) }
func (t *TUI) DirectoryChanged()               { t.program.Send(directoryChangedMsg{}) }
func (t *TUI) SelectionChanged(chatID string)  { t.program.Send(selectionChangedMsg{chatID}) }
func (t *TUI) StreamingChanged(streaming bool) { t.program.Send(streamingChangedMsg{streaming}) }
func (t *TUI) Notice(text string)              { t.program.Send(noticeMsg{text}) }

// =============================================================================
// STYLES
// =============================================================================

var (
	sidebarStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderRight(true).
			PaddingRight(1)

	selectedChatStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("212")).
				Bold(true)

	chatEntryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	userLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	assistantLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("212")).
				Bold(true)

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

const sidebarWidth = 32

// =============================================================================
// TUI MODEL
// =============================================================================

type focusArea int

const (
	focusComposer focusArea = iota
	focusSidebar
	focusFilter
)

type tuiModel struct {
	ctrl     *controller.Controller
	store    *creds.Store
	renderer *Renderer

	width  int
	height int

	viewport viewport.Model
	input    textinput.Model
	filter   textinput.Model
	spinner  spinner.Model
	ready    bool

	focus            focusArea
	sidebarCollapsed bool
	modelName        string

	// Transcript state fed by sink events.
	transcript []model.Message
	streamBuf  string
	hasStream  bool
	failNotice string
	streaming  bool

	// Sidebar state.
	chats     []*model.Chat
	activeID  string
	cursor    int
	filterStr string

	// Pending delete confirmation, empty when none.
	confirmDelete string

	status string
}

func newTUIModel(ctrl *controller.Controller, store *creds.Store, renderer *Renderer) *tuiModel {
	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.CharLimit = 0
	input.Focus()

	filter := textinput.New()
	filter.Placeholder = "Filter chats"

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	collapsed, err := store.SidebarCollapsed()
	if err != nil {
		collapsed = false
	}
	modelName, err := store.SelectedModel()
	if err != nil {
		modelName = ""
	}

	return &tuiModel{
		ctrl:             ctrl,
		store:            store,
		renderer:         renderer,
		input:            input,
		filter:           filter,
		spinner:          sp,
		sidebarCollapsed: collapsed,
		modelName:        modelName,
		chats:            ctrl.Directory().Chats(),
		activeID:         ctrl.Session().ActiveChat(),
	}
}

func (m *tuiModel) Init() tea.Cmd {
	return textinput.Blink
}

// =============================================================================
// UPDATE
// =============================================================================

func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		if !m.streaming {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case appendMsg:
		m.transcript = append(m.transcript, msg.msg)
		m.failNotice = ""
		m.refreshViewport()
		return m, nil

	case streamUpdateMsg:
		m.streamBuf = msg.buffer
		m.hasStream = true
		m.failNotice = ""
		m.refreshViewport()
		return m, nil

	case streamRemoveMsg:
		m.streamBuf = ""
		m.hasStream = false
		m.refreshViewport()
		return m, nil

	case streamFailedMsg:
		m.streamBuf = msg.partial
		m.hasStream = msg.partial != ""
		m.failNotice = msg.notice
		m.refreshViewport()
		return m, nil

	case clearTranscriptMsg:
		m.transcript = nil
		m.streamBuf = ""
		m.hasStream = false
		m.failNotice = ""
		m.refreshViewport()
		return m, nil

	case directoryChangedMsg:
		m.chats = m.ctrl.Directory().Filter(m.filterStr)
		m.clampCursor()
		return m, nil

	case selectionChangedMsg:
		m.activeID = msg.chatID
		m.syncCursor()
		return m, nil

	case streamingChangedMsg:
		m.streaming = msg.streaming
		if msg.streaming {
			return m, m.spinner.Tick
		}
		return m, nil

	case noticeMsg:
		m.status = msg.text
		return m, nil

	case opDoneMsg:
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.status = msg.err.Error()
		}
		return m, nil
	}

	return m, m.updateFocused(msg)
}

func (m *tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// A pending delete confirmation swallows everything except y/n.
	if m.confirmDelete != "" {
		switch msg.String() {
		case "y", "Y":
			id := m.confirmDelete
			m.confirmDelete = ""
			return m, m.op(func(ctx context.Context) error {
				return m.ctrl.Delete(ctx, id)
			})
		default:
			m.confirmDelete = ""
			m.status = ""
			return m, nil
		}
	}

	switch msg.String() {
	case "ctrl+c":
		if m.streaming {
			m.ctrl.Cancel()
			return m, nil
		}
		return m, tea.Quit

	case "esc":
		if m.streaming {
			m.ctrl.Cancel()
			return m, nil
		}
		if m.focus != focusComposer {
			m.setFocus(focusComposer)
			return m, nil
		}
		return m, nil

	case "tab":
		if m.sidebarCollapsed {
			return m, nil
		}
		switch m.focus {
		case focusComposer:
			m.setFocus(focusSidebar)
		case focusSidebar:
			m.setFocus(focusFilter)
		default:
			m.setFocus(focusComposer)
		}
		return m, nil

	case "ctrl+b":
		m.sidebarCollapsed = !m.sidebarCollapsed
		if err := m.store.SetSidebarCollapsed(m.sidebarCollapsed); err != nil {
			m.status = "failed to save sidebar preference"
		}
		if m.sidebarCollapsed {
			m.setFocus(focusComposer)
		}
		m.layout()
		return m, nil

	case "ctrl+n":
		if m.streaming {
			m.status = "wait for the reply to finish"
			return m, nil
		}
		return m, m.op(func(ctx context.Context) error {
			return m.ctrl.CreateChat(ctx)
		})

	case "ctrl+d":
		if m.focus != focusSidebar {
			return m, nil
		}
		if m.streaming {
			m.status = "wait for the reply to finish"
			return m, nil
		}
		if chat := m.cursorChat(); chat != nil {
			m.confirmDelete = chat.ID
			m.status = fmt.Sprintf("Delete %q? (y/n)", chat.DisplayText())
		}
		return m, nil

	case "ctrl+s":
		return m, m.exportActive()

	case "enter":
		switch m.focus {
		case focusComposer:
			return m, m.submit()
		case focusSidebar, focusFilter:
			if chat := m.cursorChat(); chat != nil {
				id := chat.ID
				m.setFocus(focusComposer)
				return m, m.op(func(ctx context.Context) error {
					return m.ctrl.Select(ctx, id)
				})
			}
			return m, nil
		}

	case "up", "ctrl+k":
		if m.focus == focusSidebar || m.focus == focusFilter {
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		}

	case "down", "ctrl+j":
		if m.focus == focusSidebar || m.focus == focusFilter {
			if m.cursor < len(m.chats)-1 {
				m.cursor++
			}
			return m, nil
		}
	}

	return m, m.updateFocused(msg)
}

// updateFocused routes remaining input to the focused component.
func (m *tuiModel) updateFocused(msg tea.Msg) tea.Cmd {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch m.focus {
	case focusComposer:
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	case focusFilter:
		m.filter, cmd = m.filter.Update(msg)
		cmds = append(cmds, cmd)
		if q := m.filter.Value(); q != m.filterStr {
			m.filterStr = q
			m.chats = m.ctrl.Directory().Filter(q)
			m.clampCursor()
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return tea.Batch(cmds...)
}

// =============================================================================
// OPERATIONS
// =============================================================================

// op runs a controller operation in a worker goroutine.
func (m *tuiModel) op(fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{err: fn(context.Background())}
	}
}

// submit sends the composed message. Attachments are declared inline
// with an @file prefix, everything else is the message text.
func (m *tuiModel) submit() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	if text == "" && m.ctrl.PendingAttachment() == nil {
		return nil
	}
	if m.streaming {
		return nil
	}

	if path, rest, ok := parseAttachCommand(text); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			m.status = "cannot read " + path
			return nil
		}
		m.ctrl.Attach(model.Attachment{FileName: filepath.Base(path), Data: data})
		text = rest
	}

	m.input.SetValue("")
	m.status = ""
	return m.op(func(ctx context.Context) error {
		return m.ctrl.Send(ctx, text)
	})
}

// parseAttachCommand splits "@file PATH rest of message" into the path
// and the remaining text.
func parseAttachCommand(text string) (path, rest string, ok bool) {
	if !strings.HasPrefix(text, "@file ") {
		return "", "", false
	}
	fields := strings.SplitN(strings.TrimPrefix(text, "@file "), " ", 2)
	if len(fields) == 0 || fields[0] == "" {
		return "", "", false
	}
	path = fields[0]
	if len(fields) == 2 {
		rest = strings.TrimSpace(fields[1])
	}
	return path, rest, true
}

// exportActive saves the visible transcript as Markdown next to the
// working directory.
func (m *tuiModel) exportActive() tea.Cmd {
	chat := m.ctrl.Directory().Get(m.activeID)
	if chat == nil || len(m.transcript) == 0 {
		m.status = "nothing to export"
		return nil
	}
	transcript := append([]model.Message(nil), m.transcript...)

	return func() tea.Msg {
		path, err := export.WriteFile(&export.MarkdownExporter{IncludeTimestamps: true}, ".", chat, transcript)
		if err != nil {
			return noticeMsg{"export failed: " + err.Error()}
		}
		return noticeMsg{"saved " + path}
	}
}

// =============================================================================
// LAYOUT / RENDERING
// =============================================================================

func (m *tuiModel) layout() {
	if m.width == 0 || m.height == 0 {
		return
	}

	mainWidth := m.width
	if !m.sidebarCollapsed {
		mainWidth -= sidebarWidth
	}
	// Composer and status take the bottom rows.
	vpHeight := m.height - 4
	if vpHeight < 1 {
		vpHeight = 1
	}

	if !m.ready {
		m.viewport = viewport.New(mainWidth, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = mainWidth
		m.viewport.Height = vpHeight
	}
	m.input.Width = mainWidth - 4
	m.renderer.Resize(mainWidth - 2)
	m.refreshViewport()
}

func (m *tuiModel) refreshViewport() {
	if !m.ready {
		return
	}

	var sb strings.Builder
	for _, msg := range m.transcript {
		sb.WriteString(m.renderMessage(msg))
		sb.WriteString("\n")
	}
	if m.hasStream {
		sb.WriteString(assistantLabelStyle.Render(model.RoleAssistant.DisplayName()))
		sb.WriteString("\n")
		sb.WriteString(m.renderer.Render(m.streamBuf))
		sb.WriteString("\n")
	}
	if m.failNotice != "" {
		sb.WriteString(errorStyle.Render("⚠ " + m.failNotice))
		sb.WriteString("\n")
	}

	m.viewport.SetContent(sb.String())
	m.viewport.GotoBottom()
}

func (m *tuiModel) renderMessage(msg model.Message) string {
	switch msg.Role {
	case model.RoleAssistant:
		return assistantLabelStyle.Render(msg.Role.DisplayName()) + "\n" + m.renderer.Render(msg.Content)
	default:
		// User text is shown verbatim, never markdown-parsed.
		return userLabelStyle.Render(msg.Role.DisplayName()) + "\n" + msg.Content + "\n"
	}
}

func (m *tuiModel) View() string {
	if !m.ready {
		return "Loading..."
	}

	main := m.viewport.View() + "\n" + m.composerView() + "\n" + m.statusView()

	if m.sidebarCollapsed {
		return main
	}
	sidebar := sidebarStyle.Height(m.height).Render(m.sidebarView())
	return lipgloss.JoinHorizontal(lipgloss.Top, sidebar, main)
}

func (m *tuiModel) sidebarView() string {
	var sb strings.Builder
	sb.WriteString(m.filter.View())
	sb.WriteString("\n\n")

	for i, chat := range m.chats {
		// Clamp by display cells so wide CJK labels do not wrap the column.
		label := util.TruncateWidth(chat.DisplayText(), sidebarWidth-4)
		switch {
		case chat.ID == m.activeID && i == m.cursor && m.focus != focusComposer:
			sb.WriteString(selectedChatStyle.Render("▸ " + label))
		case chat.ID == m.activeID:
			sb.WriteString(selectedChatStyle.Render("• " + label))
		case i == m.cursor && m.focus != focusComposer:
			sb.WriteString(chatEntryStyle.Render("▸ " + label))
		default:
			sb.WriteString(chatEntryStyle.Render("  " + label))
		}
		sb.WriteString("\n")
	}
	if len(m.chats) == 0 {
		sb.WriteString(chatEntryStyle.Render("  no chats"))
		sb.WriteString("\n")
	}
	return lipgloss.NewStyle().Width(sidebarWidth - 2).Render(sb.String())
}

func (m *tuiModel) composerView() string {
	if m.streaming {
		return m.spinner.View() + " streaming, esc to cancel"
	}
	return m.input.View()
}

func (m *tuiModel) statusView() string {
	if m.confirmDelete != "" || m.status != "" {
		if strings.Contains(m.status, "failed") || strings.Contains(m.status, "error") {
			return errorStyle.Render(m.status)
		}
		return noticeStyle.Render(m.status)
	}
	name := m.ctrl.Session().DisplayName()
	if m.modelName != "" {
		name += " · " + m.modelName
	}
	return statusStyle.Render(name + " · ctrl+n new · ctrl+b sidebar · ctrl+s export · ctrl+c quit")
}

// =============================================================================
// HELPERS
// =============================================================================

func (m *tuiModel) setFocus(f focusArea) {
	m.focus = f
	m.input.Blur()
	m.filter.Blur()
	switch f {
	case focusComposer:
		m.input.Focus()
	case focusFilter:
		m.filter.Focus()
	}
}

func (m *tuiModel) cursorChat() *model.Chat {
	if m.cursor < 0 || m.cursor >= len(m.chats) {
		return nil
	}
	return m.chats[m.cursor]
}

func (m *tuiModel) clampCursor() {
	if m.cursor >= len(m.chats) {
		m.cursor = len(m.chats) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *tuiModel) syncCursor() {
	for i, chat := range m.chats {
		if chat.ID == m.activeID {
			m.cursor = i
			return
		}
	}
}
