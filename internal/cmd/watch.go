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

var watchCmd = &cobra.Command{
	Use:   "watch <session-id>",
	Short: "Follow the participant roster of a session",
	Long: `Follow the admin stream of a session and print the roster on every change.

While the connection is failing the last roster stays on screen marked as
disconnected. Once the retry budget is spent, type /resubscribe to try
again or /quit to exit.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runWatch(ctx, args[0])
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(ctx context.Context, sessionID string) error {
	decider, err := newDecider(ctx, cfg)
	if err != nil {
		return err
	}
	journal, closeJournal, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer closeJournal()

	w := service.NewRosterWatcher(newBackend(cfg), newOpener(cfg, domain.VariantRoster), decider, cfg.RosterMaxRetries, journal...)
	defer w.Stop()

	w.OnChange(printRoster)
	w.Watch(sessionID)

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
			return nil
		case line, ok := <-lines:
			if !ok {
				<-ctx.Done()
				return nil
			}
			switch strings.TrimSpace(line) {
			case "/quit":
				return nil
			case "/resubscribe":
				if err := w.Resubscribe(); err != nil {
					fmt.Printf("Resubscribe failed: %v\n", err)
				}
			}
		}
	}
}

func printRoster(st session.State) {
	if st.SessionID == "" {
		return
	}
	header := fmt.Sprintf("== %s: %d participants", st.SessionID, len(st.Roster))
	if st.Disconnected {
		header += " (disconnected)"
	}
	fmt.Println(header)
	for _, p := range st.Roster {
		name := p.Name
		if name == "" {
			name = p.Username
		}
		fmt.Printf("  %-24s %s\n", name, p.Status)
	}
	if st.Status == domain.StatusError {
		fmt.Printf("! %s (type /resubscribe to retry)\n", st.Error)
	}
}
