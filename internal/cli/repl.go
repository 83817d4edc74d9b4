// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// repl.go - Line handling for the interactive chat.
//
// Interactive Commands:
//   /help, /h           Show available commands
//   /new [title]        Start a new conversation
//   /list, /ls          List conversations
//   /switch <id|n>      Switch to a conversation
//   /delete [id|n]      Delete a conversation (default: current)
//   /rename <title>     Rename the current conversation
//   /clear              Remove all messages from the current conversation
//   /regen              Regenerate the last reply
//   /system [prompt]    Show or set the system prompt ("reset" restores the default)
//   /context [file|off] Show, attach or detach a context file
//   /export [md|json]   Export the current conversation
//   /history            Show the current conversation
//   /quit, /q           Exit chat
//   Ctrl+C              Cancel the reply being generated

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/jeranaias/mohadith/internal/export"
	"github.com/jeranaias/mohadith/internal/model"
	"github.com/jeranaias/mohadith/internal/session"
)

// errQuit ends the REPL loop.
var errQuit = errors.New("quit")

// REPL interprets chat input lines against an App.
type REPL struct {
	app *App
	out io.Writer
}

// NewREPL creates a REPL writing to app.Out.
func NewREPL(app *App) *REPL {
	return &REPL{app: app, out: app.Out}
}

// Handle processes one input line. Plain text is sent to the active
// conversation. It returns the turn the line started, if any.
func (r *REPL) Handle(ctx context.Context, line string) (*session.Turn, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}
	if !strings.HasPrefix(line, "/") {
		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			return nil, errQuit
		}
		return r.send(ctx, line)
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "help", "h", "?":
		r.help()
	case "quit", "q", "exit":
		return nil, errQuit
	case "new", "n":
		r.newConversation(arg)
	case "list", "ls", "l":
		printConversationList(r.out, r.app.Store.ListAll(), r.app.Store.ActiveID())
	case "switch", "s":
		return nil, r.switchTo(arg)
	case "delete", "del", "rm":
		return nil, r.delete(arg)
	case "rename":
		return nil, r.rename(arg)
	case "clear", "c":
		r.app.Store.Clear("")
		r.app.Persist()
		fmt.Fprintln(r.out, SuccessStyle.Render("Conversation cleared."))
	case "regen", "regenerate", "retry":
		return r.regenerate(ctx)
	case "system":
		return nil, r.system(arg)
	case "context", "ctx":
		return nil, r.context(arg)
	case "export":
		return nil, r.export(arg)
	case "history", "show":
		conv, ok := r.app.Store.Active()
		if ok {
			printTranscript(r.out, conv, r.app.printer.render, r.app.Config.Get().UI.ShowTimestamps)
		}
	default:
		return nil, ErrUsage("unknown command /"+name, "/help")
	}
	return nil, nil
}

func (r *REPL) send(ctx context.Context, text string) (*session.Turn, error) {
	r.app.printer.Follow(r.app.Store.EnsureActive())
	turn, err := r.app.Controller.Send(ctx, text)
	if errors.Is(err, session.ErrTurnInFlight) {
		return nil, errors.New("a reply is still being generated; press Ctrl+C to cancel it")
	}
	return turn, err
}

func (r *REPL) regenerate(ctx context.Context) (*session.Turn, error) {
	r.app.printer.Follow(r.app.Store.EnsureActive())
	turn, err := r.app.Controller.RegenerateLast(ctx)
	if err != nil {
		return nil, err
	}
	if turn == nil {
		fmt.Fprintln(r.out, DimStyle.Render("Nothing to regenerate."))
	}
	return turn, nil
}

func (r *REPL) newConversation(title string) {
	if title == "" {
		title = model.DefaultTitle
	}
	r.app.Store.CreateConversation(title)
	r.app.Persist()
	fmt.Fprintln(r.out, SuccessStyle.Render("Started a new conversation."))
}

func (r *REPL) switchTo(ref string) error {
	conv, err := resolveConversation(r.app.Store, ref)
	if err != nil {
		return err
	}
	r.app.Store.SetActive(conv.ID)
	r.app.Persist()
	fmt.Fprintf(r.out, "Switched to %s %s\n", HighlightStyle.Render(conv.Title),
		DimStyle.Render(fmt.Sprintf("(%d messages)", conv.MessageCount())))
	return nil
}

func (r *REPL) delete(ref string) error {
	id := r.app.Store.ActiveID()
	if ref != "" {
		conv, err := resolveConversation(r.app.Store, ref)
		if err != nil {
			return err
		}
		id = conv.ID
	}
	if r.app.Controller.InFlight(id) {
		r.app.Controller.Cancel(id)
	}
	if !r.app.Store.Delete(id) {
		return ErrNotFound("conversation", ref)
	}
	r.app.Contexts.Detach(id)
	r.app.Persist()
	fmt.Fprintln(r.out, SuccessStyle.Render("Conversation deleted."))
	return nil
}

func (r *REPL) rename(title string) error {
	if title == "" {
		return ErrUsage("a title is required", "/rename Go channels")
	}
	r.app.Store.Rename(r.app.Store.ActiveID(), title)
	r.app.Persist()
	fmt.Fprintln(r.out, SuccessStyle.Render("Renamed to "+title))
	return nil
}

func (r *REPL) system(arg string) error {
	conv, ok := r.app.Store.Active()
	if !ok {
		return nil
	}
	switch strings.ToLower(arg) {
	case "":
		if conv.SystemPrompt != "" {
			fmt.Fprintln(r.out, conv.SystemPrompt)
		} else {
			fmt.Fprintln(r.out, DimStyle.Render("(default) ")+r.app.Config.Get().Generation.SystemPrompt)
		}
		return nil
	case "reset", "default":
		arg = ""
	}
	r.app.Store.SetSystemPrompt(conv.ID, arg)
	r.app.Persist()
	fmt.Fprintln(r.out, SuccessStyle.Render("System prompt updated."))
	return nil
}

func (r *REPL) context(arg string) error {
	convID := r.app.Store.ActiveID()
	switch strings.ToLower(arg) {
	case "":
		if path, ok := r.app.Contexts.Attached(convID); ok {
			fmt.Fprintln(r.out, "Context: "+path)
		} else {
			fmt.Fprintln(r.out, DimStyle.Render("No context file attached."))
		}
		return nil
	case "off", "none", "clear":
		r.app.Contexts.Detach(convID)
		fmt.Fprintln(r.out, SuccessStyle.Render("Context file detached."))
		return nil
	}

	if err := r.app.Contexts.Attach(convID, arg); err != nil {
		return err
	}
	fmt.Fprintln(r.out, SuccessStyle.Render("Attached "+arg))
	if !r.app.Config.Get().Conversation.ContextAwareness {
		fmt.Fprintln(r.out, WarningStyle.Render("conversation.context_awareness is off; the file will not be sent."))
	}
	return nil
}

func (r *REPL) export(arg string) error {
	format, dir, _ := strings.Cut(arg, " ")
	conv, ok := r.app.Store.Active()
	if !ok {
		return nil
	}
	path, err := exportConversation(conv, format, strings.TrimSpace(dir))
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, SuccessStyle.Render("Exported to "+path))
	return nil
}

// exportConversation writes conv in format to dir.
func exportConversation(conv *model.Conversation, format, dir string) (string, error) {
	opts := export.DefaultOptions()
	if dir != "" {
		opts.OutputDir = dir
	}
	exporter, err := export.ForFormat(format, opts)
	if err != nil {
		return "", ErrUsage(err.Error(), "/export json")
	}
	return export.ToFile(conv, exporter, opts)
}

func (r *REPL) help() {
	rows := [][2]string{
		{"/new [title]", "Start a new conversation"},
		{"/list", "List conversations"},
		{"/switch <id|n>", "Switch to a conversation"},
		{"/delete [id|n]", "Delete a conversation"},
		{"/rename <title>", "Rename the current conversation"},
		{"/clear", "Remove all messages"},
		{"/regen", "Regenerate the last reply"},
		{"/system [prompt]", "Show or set the system prompt"},
		{"/context [file|off]", "Attach a file as context"},
		{"/export [md|json]", "Export the current conversation"},
		{"/history", "Show the current conversation"},
		{"/quit", "Exit"},
		{"Ctrl+C", "Cancel the reply being generated"},
	}
	for _, row := range rows {
		fmt.Fprintf(r.out, "  %s %s\n", RenderLabel(row[0]), row[1])
	}
}
