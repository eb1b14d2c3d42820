// Command focusctl watches a focusd server and toggles blink tracking.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	timeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "focusctl",
	Short:         "Client for the focusd websocket",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "url", "u", "ws://localhost:6969", "focusd address")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Timeout for control and status requests")

	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newBlinkCmd("start-blink", "Start blink tracking", startAction))
	rootCmd.AddCommand(newBlinkCmd("stop-blink", "Stop blink tracking", stopAction))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "focusctl:", err)
		os.Exit(1)
	}
}
