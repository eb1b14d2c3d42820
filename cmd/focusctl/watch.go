package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-focus/pkg/client"
	"github.com/teslashibe/go-focus/pkg/protocol"
)

func newWatchCmd() *cobra.Command {
	var startBlink bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream focus and blink updates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := client.Dial(ctx, serverURL)
			if err != nil {
				return err
			}
			defer c.Close()

			if startBlink {
				if err := c.Send(protocol.ActionStartBlink); err != nil {
					return err
				}
			}
			return watch(ctx, c, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&startBlink, "start-blink", false, "Request blink tracking before watching")
	return cmd
}

// watcher renders events, showing calibration as a progress bar.
type watcher struct {
	out io.Writer
	bar *progressbar.ProgressBar
}

func watch(ctx context.Context, c *client.Client, out io.Writer) error {
	w := &watcher{out: out}
	for {
		e, err := c.Next(ctx)
		if err != nil {
			w.finishBar()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		w.render(e)
	}
}

func (w *watcher) render(e client.Event) {
	if e.Status == "calibrating" {
		if w.bar == nil {
			w.bar = progressbar.NewOptions(e.Total,
				progressbar.OptionSetDescription("Calibrating"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
			)
		}
		w.bar.Set(e.Progress)
		return
	}
	w.finishBar()
	if line := formatEvent(e); line != "" {
		fmt.Fprintln(w.out, line)
	}
}

func (w *watcher) finishBar() {
	if w.bar != nil {
		w.bar.Finish()
		fmt.Fprintln(os.Stderr)
		w.bar = nil
	}
}

// formatEvent renders one non-calibration event as a single line.
func formatEvent(e client.Event) string {
	switch {
	case e.Status == "focus":
		line := fmt.Sprintf("focus %5.1f  engagement %.3f", e.Focus, e.Engagement)
		if e.Baseline != nil {
			line += fmt.Sprintf("  baseline %.3f±%.3f", e.Baseline.Mean, e.Baseline.Std)
		}
		if e.Blinks != nil {
			line += "  " + formatBlinks(*e.Blinks)
		}
		return line
	case e.Status == protocol.StatusBlinkOnly && e.Blinks != nil:
		return "blink " + formatBlinks(*e.Blinks)
	case e.IsBlink():
		line := fmt.Sprintf("blink %s  total %d  rate %d/min", e.Status, *e.TotalBlinks, e.BlinkRate)
		if e.Message != "" {
			line += "  (" + e.Message + ")"
		}
		return line
	case e.Message != "":
		return e.Status + ": " + e.Message
	default:
		return ""
	}
}

func formatBlinks(b protocol.BlinkSummary) string {
	if !b.FaceDetected {
		return fmt.Sprintf("blinks %d (%d/min, no face)", b.Total, b.Rate)
	}
	return fmt.Sprintf("blinks %d (%d/min, ear %.3f)", b.Total, b.Rate, b.EAR)
}
