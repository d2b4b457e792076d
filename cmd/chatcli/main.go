package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"OmniChat/pkg/client"
)

// chatcli drives the chat API from a terminal: each input line is one turn,
// the reply streams to stdout as it arrives. The first turn creates the
// conversation; its id is printed so the session can be resumed with -conv.
func main() {
	baseURL := flag.String("url", "http://localhost:5000", "chat backend base URL")
	token := flag.String("token", os.Getenv("CHAT_TOKEN"), "bearer token (or CHAT_TOKEN env)")
	model := flag.String("model", "gemini", "model choice: gemini|perplexity|bedrock")
	convID := flag.String("conv", "", "resume an existing conversation id")
	flag.Parse()

	if *token == "" {
		fmt.Fprintln(os.Stderr, "a session token is required (-token or CHAT_TOKEN)")
		os.Exit(1)
	}

	view := client.NewChatView(client.New(*baseURL, *token))
	if *convID != "" {
		// print history, then continue the conversation
		msgs, err := view.Resume(context.Background(), *convID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "resume failed: %v\n", err)
			os.Exit(1)
		}
		for _, m := range msgs {
			fmt.Printf("[%s] %s\n", m.Role, m.Content)
		}
	}

	in := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for in.Scan() {
		text := strings.TrimSpace(in.Text())
		if text == "" {
			fmt.Print("> ")
			continue
		}
		if text == "/quit" {
			return
		}

		first := view.ConversationID() == ""
		_, err := view.Send(context.Background(), *model, text, func(chunk string) {
			fmt.Print(chunk)
		})
		fmt.Println()
		if err != nil {
			fmt.Fprintf(os.Stderr, "turn failed: %v\n", err)
		}
		if first && view.ConversationID() != "" {
			fmt.Printf("(conversation %s)\n", view.ConversationID())
		}
		fmt.Print("> ")
	}
}
