package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aqua777/krait"

	"github.com/aqua777/go-ragchat/chatengine"
	"github.com/aqua777/go-ragchat/storage/chatstore"
)

func runHealth(args []string) error {
	app, err := NewApp()
	if err != nil {
		return err
	}
	defer app.Close()

	status, err := app.client.Health(context.Background())
	if err != nil {
		fmt.Println(errorStyle.Render("unhealthy: " + app.client.BaseURL()))
		return err
	}
	fmt.Printf("%s %s %s\n", assistantStyle.Render("ok"), app.client.BaseURL(), dimStyle.Render(status.Message))
	return nil
}

func runConversations(args []string) error {
	app, err := NewApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := context.Background()
	store := app.MessageStore()
	if id := krait.GetString(KeyDelete); id != "" {
		if err := chatengine.DeleteConversation(ctx, store, id, nil); err != nil {
			return err
		}
		fmt.Println("Deleted conversation " + id)
		return nil
	}

	page, err := chatengine.ListConversations(ctx, store, krait.GetInt(KeyOffset), krait.GetInt(KeyLimit))
	if err != nil {
		return err
	}
	printConversations(os.Stdout, page, "")
	return nil
}

func runPrompts(args []string) error {
	app, err := NewApp()
	if err != nil {
		return err
	}
	defer app.Close()

	printPrompts(os.Stdout, app.prompts.Names(), app.prompts.Selected().Name)
	return nil
}

func printConversations(w io.Writer, page *chatstore.ConversationPage, current string) {
	if len(page.Conversations) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No conversations"))
		return
	}
	for _, c := range page.Conversations {
		marker := "  "
		if c.ID == current {
			marker = "* "
		}
		fmt.Fprintf(w, "%s%s  %s  %s\n", marker, c.ID, dimStyle.Render(c.CreatedAt.Format("2006-01-02 15:04")), c.Name)
	}
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("%d of %d conversation(s)", len(page.Conversations), page.Total)))
}

func printPrompts(w io.Writer, names []string, current string) {
	for _, name := range names {
		marker := "  "
		if name == current {
			marker = "* "
		}
		fmt.Fprintln(w, marker+name)
	}
}
