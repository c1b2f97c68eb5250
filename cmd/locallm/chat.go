package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/locallm/internal/generation"
	"golang.org/x/term"
)

func newChatCmd() *cobra.Command {
	var (
		configPath     string
		conversationID uint
		model          string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the configured model from the terminal",
		Long: `Reads prompts line by line and prints each reply. Every line is one turn
in the same conversation. Enter an empty line or /quit to stop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, configPath, conversationID, model)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().UintVar(&conversationID, "conversation", 0, "continue an existing conversation")
	cmd.Flags().StringVarP(&model, "model", "m", "", "text model for a new conversation")
	return cmd
}

func runChat(cmd *cobra.Command, configPath string, conversationID uint, model string) error {
	a, err := openApp(cmd, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	interactive := isTerminal(cmd)
	var convID *uint
	if conversationID > 0 {
		convID = &conversationID
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		if interactive {
			fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line == "/quit" {
			break
		}

		res, err := a.generator.GenerateText(contextOf(cmd), generation.TextRequest{
			ConversationID: convID,
			Prompt:         line,
			ModelName:      model,
		})
		if err != nil {
			return err
		}
		if convID == nil {
			id := res.ConversationID
			convID = &id
			if interactive {
				fmt.Fprintf(out, "(conversation %d)\n", id)
			}
		}
		fmt.Fprintln(out, res.Text)
	}
	return scanner.Err()
}

// isTerminal reports whether the command reads from an interactive terminal.
func isTerminal(cmd *cobra.Command) bool {
	f, ok := cmd.InOrStdin().(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
