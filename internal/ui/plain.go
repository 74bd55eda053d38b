// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/muesli/termenv"
	"github.com/peterh/liner"

	"github.com/pni-chat/pni-tui/internal/config"
	"github.com/pni-chat/pni-tui/internal/controller"
	"github.com/pni-chat/pni-tui/internal/creds"
	"github.com/pni-chat/pni-tui/internal/export"
	"github.com/pni-chat/pni-tui/internal/model"
)

// =============================================================================
// PLAIN SURFACE
// =============================================================================

// Plain is the line-based surface for terminals where the full-screen
// UI is unwanted or unsupported. It implements controller.Sink by
// printing directly; streaming chunks appear as they arrive.
type Plain struct {
	ctrl  *controller.Controller
	store *creds.Store
	line  *liner.State

	color bool

	mu      sync.Mutex
	printed int // length of the streamed buffer already written
}

// NewPlain creates the plain surface.
func NewPlain(ctrl *controller.Controller, store *creds.Store) *Plain {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	p := &Plain{
		ctrl:  ctrl,
		store: store,
		line:  line,
		color: termenv.DefaultOutput().Profile != termenv.Ascii,
	}
	p.loadHistory()
	return p
}

func (p *Plain) historyPath() string {
	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "chat_history")
}

func (p *Plain) loadHistory() {
	if f, err := os.Open(p.historyPath()); err == nil {
		p.line.ReadHistory(f)
		f.Close()
	}
}

func (p *Plain) saveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(p.historyPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	p.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (p *Plain) Close() {
	p.saveHistory()
	p.line.Close()
}

// =============================================================================
// SINK IMPLEMENTATION
// =============================================================================

func (p *Plain) AppendMessage(msg model.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	label := msg.Role.DisplayName()
	if msg.Role == model.RoleAssistant {
		fmt.Printf("\n%s:\n%s\n", label, highlightFences(msg.Content, p.color))
	} else {
		fmt.Printf("\n%s: %s\n", label, msg.Content)
	}
}

// StreamUpdate receives the whole buffer each chunk; only the unseen
// tail is printed so the stream flows naturally in line mode.
func (p *Plain) StreamUpdate(buffer string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.printed == 0 {
		fmt.Printf("\n%s:\n", model.RoleAssistant.DisplayName())
	}
	if len(buffer) > p.printed {
		fmt.Print(buffer[p.printed:])
		p.printed = len(buffer)
	}
}

func (p *Plain) StreamRemove() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.printed > 0 {
		fmt.Println("\n[reply discarded]")
		p.printed = 0
	}
}

func (p *Plain) StreamFailed(partial, notice string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Printf("\n[error: %s]\n", notice)
	p.printed = 0
}

func (p *Plain) ClearTranscript() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printed = 0
	fmt.Println("\n---")
}

func (p *Plain) DirectoryChanged() {}

func (p *Plain) SelectionChanged(chatID string) {}

func (p *Plain) StreamingChanged(streaming bool) {
	if !streaming {
		p.mu.Lock()
		if p.printed > 0 {
			fmt.Println()
			p.printed = 0
		}
		p.mu.Unlock()
	}
}

func (p *Plain) Notice(text string) {
	fmt.Printf("\n* %s\n", text)
}

// =============================================================================
// REPL
// =============================================================================

// Run reads commands and messages until the user quits.
func (p *Plain) Run(ctx context.Context) error {
	fmt.Println("pni chat, /help for commands")
	p.printChats()

	for {
		input, err := p.line.Prompt("> ")
		if err != nil {
			if err == liner.ErrPromptAborted {
				if p.ctrl.Session().Streaming() {
					p.ctrl.Cancel()
					continue
				}
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		p.line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if quit := p.command(ctx, input); quit {
				return nil
			}
			continue
		}

		text := input
		if path, rest, ok := parseAttachCommand(input); ok {
			data, err := os.ReadFile(path)
			if err != nil {
				fmt.Printf("cannot read %s: %v\n", path, err)
				continue
			}
			p.ctrl.Attach(model.Attachment{FileName: filepath.Base(path), Data: data})
			text = rest
		}

		if err := p.ctrl.Send(ctx, text); err != nil {
			fmt.Printf("send failed: %v\n", err)
		}
	}
}

// command dispatches a slash command; returns true to quit.
func (p *Plain) command(ctx context.Context, input string) bool {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/quit", "/q", "/exit":
		return true

	case "/help":
		fmt.Println(`/chats          list chats
/select N       switch to chat number N
/new            start a new chat
/delete N       delete chat number N
/export         save the current chat as markdown
/model [NAME]   show or set the preferred model
/quit           leave`)

	case "/chats":
		p.printChats()

	case "/new":
		if err := p.ctrl.CreateChat(ctx); err != nil {
			fmt.Printf("create failed: %v\n", err)
		}

	case "/select":
		if chat := p.chatByNumber(fields); chat != nil {
			if err := p.ctrl.Select(ctx, chat.ID); err != nil {
				fmt.Printf("select failed: %v\n", err)
			}
		}

	case "/delete":
		if chat := p.chatByNumber(fields); chat != nil {
			ok, err := p.line.Prompt(fmt.Sprintf("delete %q? (y/n) ", chat.DisplayText()))
			if err == nil && (ok == "y" || ok == "Y") {
				if err := p.ctrl.Delete(ctx, chat.ID); err != nil {
					fmt.Printf("delete failed: %v\n", err)
				}
			}
		}

	case "/export":
		p.exportActive(ctx)

	case "/model":
		p.modelCommand(fields)

	default:
		fmt.Println("unknown command, /help for help")
	}
	return false
}

func (p *Plain) chatByNumber(fields []string) *model.Chat {
	if len(fields) < 2 {
		fmt.Println("which chat? run /chats for numbers")
		return nil
	}
	n, err := strconv.Atoi(fields[1])
	chats := p.ctrl.Directory().Chats()
	if err != nil || n < 1 || n > len(chats) {
		fmt.Println("no such chat")
		return nil
	}
	return chats[n-1]
}

func (p *Plain) printChats() {
	chats := p.ctrl.Directory().Chats()
	if len(chats) == 0 {
		fmt.Println("no chats yet, type a message to start one")
		return
	}
	active := p.ctrl.Session().ActiveChat()
	for i, chat := range chats {
		marker := " "
		if chat.ID == active {
			marker = "*"
		}
		fmt.Printf("%s %2d. %s\n", marker, i+1, chat.DisplayText())
	}
}

// model shows or persists the preferred-model setting. The preference
// travels with the client state, not the server.
func (p *Plain) modelCommand(fields []string) {
	if len(fields) < 2 {
		name, err := p.store.SelectedModel()
		if err != nil || name == "" {
			fmt.Println("no model preference set (server default)")
			return
		}
		fmt.Println("model:", name)
		return
	}
	if err := p.store.SetSelectedModel(fields[1]); err != nil {
		fmt.Printf("could not save model preference: %v\n", err)
		return
	}
	fmt.Println("model set to", fields[1])
}

func (p *Plain) exportActive(ctx context.Context) {
	active := p.ctrl.Session().ActiveChat()
	chat := p.ctrl.Directory().Get(active)
	if chat == nil {
		fmt.Println("no active chat")
		return
	}

	messages, err := p.ctrl.Transcript(ctx, chat.ID)
	if err != nil {
		fmt.Printf("export failed: %v\n", err)
		return
	}

	path, err := export.WriteFile(&export.MarkdownExporter{IncludeTimestamps: true}, ".", chat, messages)
	if err != nil {
		fmt.Printf("export failed: %v\n", err)
		return
	}
	fmt.Println("saved", path)
}

// =============================================================================
// CODE FENCE HIGHLIGHTING
// =============================================================================

// highlightFences runs chroma over code fences in a finished reply.
// Streaming output stays plain; fences may be mid-flight there.
func highlightFences(content string, color bool) string {
	if !color || !strings.Contains(content, "```") {
		return content
	}

	var sb strings.Builder
	parts := strings.Split(content, "```")
	for i, part := range parts {
		if i%2 == 0 {
			sb.WriteString(part)
			continue
		}
		lang := ""
		code := part
		if nl := strings.IndexByte(part, '\n'); nl >= 0 {
			lang = strings.TrimSpace(part[:nl])
			code = part[nl+1:]
		}
		sb.WriteString("\n")
		sb.WriteString(highlightCode(code, lang))
	}
	return sb.String()
}

// highlightCode applies terminal syntax highlighting to a code block.
func highlightCode(code, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}
