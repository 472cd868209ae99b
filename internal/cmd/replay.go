package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/livesession/internal/repository"
	"github.com/xiaot623/gogo/livesession/internal/service"
)

var (
	replayEntries bool
	replayList    bool
)

var replayCmd = &cobra.Command{
	Use:   "replay [session-id]",
	Short: "Rebuild a session state from the event journal",
	Long: `Read the journal at DATABASE_URL and print the state obtained by folding
the recorded stream events of a session, as JSON.

With --entries the journaled log entries are printed instead. With --list
the journaled sessions are listed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is not set; the journal is disabled")
		}
		store, err := repository.NewSQLiteStore(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if replayList {
			sessions, err := store.ListSessions(ctx)
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}
			return enc.Encode(sessions)
		}

		if len(args) == 0 {
			return fmt.Errorf("session id is required")
		}
		sessionID := args[0]

		if replayEntries {
			entries, err := store.GetEntries(ctx, sessionID)
			if err != nil {
				return fmt.Errorf("failed to get entries: %w", err)
			}
			return enc.Encode(entries)
		}

		events, err := store.GetEvents(ctx, sessionID, 0)
		if err != nil {
			return fmt.Errorf("failed to get events: %w", err)
		}
		if len(events) == 0 {
			return fmt.Errorf("no events journaled for %s", sessionID)
		}
		return enc.Encode(service.ReplayEvents(sessionID, events))
	},
}

func init() {
	replayCmd.Flags().BoolVar(&replayEntries, "entries", false, "print journaled log entries")
	replayCmd.Flags().BoolVar(&replayList, "list", false, "list journaled sessions")
	rootCmd.AddCommand(replayCmd)
}
