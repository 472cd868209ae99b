package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/livesession/internal/logger"
	devhttp "github.com/xiaot623/gogo/livesession/internal/transport/http"
)

var (
	servePort      int
	serveStepDelay time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scripted development backend",
	Long: `Run a development backend that implements the chat, respond, stream and
admin endpoints with a scripted agent.

Every message produces THINKING, a tool call and its result, a MESSAGE and
then COMPLETE. Messages containing "confirm" end with AWAITING_INPUT
instead, and messages containing "error" end with ERROR.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port := cfg.HTTPPort
		if servePort != 0 {
			port = servePort
		}
		return runServe(port, serveStepDelay)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default HTTP_PORT)")
	serveCmd.Flags().DurationVar(&serveStepDelay, "step-delay", 300*time.Millisecond, "pause between scripted events")
	rootCmd.AddCommand(serveCmd)
}

func runServe(port int, stepDelay time.Duration) error {
	srv := devhttp.NewServer(stepDelay)

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", port)
		logger.Infof("development backend listening on %s", addr)
		if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Infof("shutting down development backend")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
