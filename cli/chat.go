package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/aqua777/krait"
	"github.com/charmbracelet/lipgloss"

	"github.com/aqua777/go-ragchat/chatengine"
	"github.com/aqua777/go-ragchat/llm"
	"github.com/aqua777/go-ragchat/storage/chatstore"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

const chatHelp = `Commands:
  /new [name]     start a new conversation
  /list           list conversations
  /resume <id>    continue a conversation
  /delete <id>    delete a conversation
  /history        show the current conversation
  /prompt <name>  switch the task prompt
  /prompts        list task prompts
  /help           show this help
  exit, quit      leave`

// chatREPL is an interactive chat session.
type chatREPL struct {
	app     *App
	store   chatstore.MessageStore
	engine  *chatengine.ConversationalEngine
	session *chatengine.Session
	out     io.Writer
}

func runChat(args []string) error {
	app, err := NewApp()
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer app.Close()

	ctx := context.Background()
	store := app.MessageStore()
	engine, err := app.ChatEngine(store)
	if err != nil {
		return err
	}

	r := &chatREPL{app: app, store: store, engine: engine, out: os.Stdout}
	if id := krait.GetString(KeyConversation); id != "" {
		if r.session, err = chatengine.Resume(ctx, store, id); err != nil {
			return err
		}
	} else {
		r.session = &chatengine.Session{Name: krait.GetString(KeyName)}
	}
	if name := krait.GetString(KeyTaskPrompt); name != "" {
		if _, err := app.prompts.Get(name); err != nil {
			return err
		}
		r.session.TaskPrompt = name
	}

	if q := krait.GetString(KeyQuestion); q != "" {
		return r.turn(ctx, q)
	}
	return r.loop(ctx, os.Stdin)
}

func (r *chatREPL) loop(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(r.out, headerStyle.Render("ragchat")+" "+dimStyle.Render("model "+r.app.settings.ChatModel+", /help for commands, Ctrl-C stops an answer"))
	if r.session.ConversationID != "" {
		fmt.Fprintln(r.out, dimStyle.Render("Resumed conversation "+r.session.ConversationID))
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(r.out, "\n"+userStyle.Render("You: "))
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		switch strings.ToLower(input) {
		case "exit", "quit":
			fmt.Fprintln(r.out, "Goodbye!")
			return nil
		}

		if cmd, arg, ok := parseCommand(input); ok {
			if err := r.command(ctx, cmd, arg); err != nil {
				fmt.Fprintln(r.out, errorStyle.Render("Error: "+err.Error()))
			}
			continue
		}

		if err := r.turn(ctx, input); err != nil {
			fmt.Fprintln(r.out, errorStyle.Render("Error: "+err.Error()))
		}
	}
	return scanner.Err()
}

// turn answers one query. An interrupt cancels the answer, not the session.
func (r *chatREPL) turn(parent context.Context, query string) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	fmt.Fprint(r.out, "\n"+assistantStyle.Render("Assistant: "))
	resp, err := r.engine.Chat(ctx, r.session, query, func(token string) {
		fmt.Fprint(r.out, token)
	})
	fmt.Fprintln(r.out)
	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(r.out, dimStyle.Render("(answer cancelled)"))
			return nil
		}
		return err
	}
	if resp.Response == "" {
		fmt.Fprintln(r.out, dimStyle.Render("(no answer)"))
	}
	if len(resp.Selected) > 0 {
		fmt.Fprintln(r.out, dimStyle.Render(fmt.Sprintf("(used %d earlier message(s))", len(resp.Selected))))
	}
	return nil
}

func (r *chatREPL) command(ctx context.Context, cmd, arg string) error {
	switch cmd {
	case "help":
		fmt.Fprintln(r.out, chatHelp)
	case "new":
		r.session = &chatengine.Session{Name: arg, TaskPrompt: r.session.TaskPrompt}
		fmt.Fprintln(r.out, dimStyle.Render("Started a new conversation"))
	case "list":
		page, err := chatengine.ListConversations(ctx, r.store, 0, DefaultListLimit)
		if err != nil {
			return err
		}
		printConversations(r.out, page, r.session.ConversationID)
	case "resume":
		if arg == "" {
			return fmt.Errorf("usage: /resume <id>")
		}
		s, err := chatengine.Resume(ctx, r.store, arg)
		if err != nil {
			return err
		}
		s.TaskPrompt = r.session.TaskPrompt
		r.session = s
		fmt.Fprintln(r.out, dimStyle.Render("Resumed conversation "+arg))
	case "delete":
		if arg == "" {
			return fmt.Errorf("usage: /delete <id>")
		}
		if err := chatengine.DeleteConversation(ctx, r.store, arg, r.session); err != nil {
			return err
		}
		fmt.Fprintln(r.out, dimStyle.Render("Deleted conversation "+arg))
	case "history":
		if r.session.ConversationID == "" {
			fmt.Fprintln(r.out, dimStyle.Render("No conversation yet"))
			return nil
		}
		msgs, err := chatengine.History(ctx, r.store, r.session.ConversationID)
		if err != nil {
			return err
		}
		printHistory(r.out, msgs)
	case "prompt":
		if _, err := r.app.prompts.Get(arg); err != nil {
			return err
		}
		r.session.TaskPrompt = arg
		fmt.Fprintln(r.out, dimStyle.Render("Task prompt set to "+arg))
	case "prompts":
		current := r.session.TaskPrompt
		if current == "" {
			current = r.app.prompts.Selected().Name
		}
		printPrompts(r.out, r.app.prompts.Names(), current)
	default:
		return fmt.Errorf("unknown command /%s, try /help", cmd)
	}
	return nil
}

// parseCommand splits a "/name argument" line.
func parseCommand(line string) (cmd, arg string, ok bool) {
	if !strings.HasPrefix(line, "/") {
		return "", "", false
	}
	fields := strings.SplitN(strings.TrimPrefix(line, "/"), " ", 2)
	cmd = strings.ToLower(strings.TrimSpace(fields[0]))
	if cmd == "" {
		return "", "", false
	}
	if len(fields) == 2 {
		arg = strings.TrimSpace(fields[1])
	}
	return cmd, arg, true
}

func printHistory(w io.Writer, msgs []chatstore.Message) {
	for _, m := range msgs {
		label := assistantStyle.Render("Assistant: ")
		if m.Role == llm.MessageRoleUser {
			label = userStyle.Render("You: ")
		}
		fmt.Fprintf(w, "%s%s\n", label, m.Content)
	}
}
