package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/livesession/internal/domain"
	"github.com/xiaot623/gogo/livesession/internal/service"
	"github.com/xiaot623/gogo/livesession/internal/session"
)

var chatModel string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with an agent session",
	Long: `Start an agent session and print its events as they stream in.

Type a message and press Enter to send it. When the agent asks for
confirmation, the next line is sent as the answer; typing an option id or
label selects that option.

Commands: /reset to start over, /quit to exit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runChat(ctx)
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatModel, "model", "", "model override for this chat")
	rootCmd.AddCommand(chatCmd)
}

func runChat(ctx context.Context) error {
	decider, err := newDecider(ctx, cfg)
	if err != nil {
		return err
	}
	journal, closeJournal, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer closeJournal()

	model := cfg.Model
	if chatModel != "" {
		model = chatModel
	}
	opts := append([]service.Option{
		service.WithContextID(cfg.ContextID),
		service.WithModel(model),
	}, journal...)

	c := service.NewController(newBackend(cfg), newOpener(cfg, domain.VariantAgent), decider, opts...)
	defer c.Close()

	printer := &statePrinter{}
	c.OnChange(printer.print)

	fmt.Printf("Connected to %s (%s)\n", cfg.BackendURL, cfg.Transport)
	fmt.Println("Type a message and press Enter to send.")
	fmt.Println("Commands: /reset, /quit")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			input := strings.TrimSpace(line)
			switch {
			case input == "":
				continue
			case input == "/quit":
				fmt.Println("Bye!")
				return nil
			case input == "/reset":
				c.Reset()
				fmt.Println("Session reset.")
				continue
			}

			st := c.Snapshot()
			if st.Status == domain.StatusAwaitingInput {
				answer, optionID := matchOption(st, input)
				if err := c.Respond(ctx, answer, optionID); err != nil {
					fmt.Printf("Respond failed: %v\n", err)
				}
				continue
			}
			if err := c.SendMessage(ctx, input, nil); err != nil {
				fmt.Printf("Send failed: %v\n", err)
			}
		}
	}
}

// matchOption maps input onto the pending confirmation options by id or
// label. Unmatched input is sent as a free-form answer.
func matchOption(st session.State, input string) (string, string) {
	for i := len(st.Messages) - 1; i >= 0; i-- {
		entry := st.Messages[i]
		if entry.Tag != domain.TagAwaitingInput {
			continue
		}
		for _, opt := range entry.ConfirmationOptions {
			if strings.EqualFold(input, opt.ID) || strings.EqualFold(input, opt.Label) {
				return opt.Label, opt.ID
			}
		}
		break
	}
	return input, ""
}

// statePrinter prints log entries and status changes once each.
type statePrinter struct {
	printed int
	status  domain.Status
	texts   map[string]string
}

func (p *statePrinter) print(st session.State) {
	if p.texts == nil {
		p.texts = make(map[string]string)
	}
	if len(st.Messages) < p.printed {
		p.printed = 0
		p.texts = make(map[string]string)
	}

	for i, entry := range st.Messages {
		if i < p.printed {
			if entry.Tag == domain.TagToolCall && p.texts[entry.ID] != entry.Text {
				fmt.Printf("  ~ %s\n", entry.Text)
				p.texts[entry.ID] = entry.Text
			}
			continue
		}
		p.texts[entry.ID] = entry.Text
		switch entry.Role {
		case domain.RoleUser:
			continue
		case domain.RoleSystem:
			fmt.Printf("  * %s\n", entry.Text)
		default:
			fmt.Printf("< %s\n", entry.Text)
			for _, opt := range entry.ConfirmationOptions {
				fmt.Printf("    [%s] %s\n", opt.ID, opt.Label)
			}
		}
	}
	p.printed = len(st.Messages)

	if st.Status != p.status {
		p.status = st.Status
		switch st.Status {
		case domain.StatusError:
			fmt.Printf("! %s\n", st.Error)
		case domain.StatusComplete, domain.StatusAwaitingInput:
			fmt.Printf("(%s)\n", st.Status)
		}
	}
}
