package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/freeathome/internal/engine"
	"github.com/muurk/freeathome/internal/session"
	"github.com/muurk/freeathome/internal/ui"
)

var plainOutput bool

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVar(&plainOutput, "plain", false, "Print state changes line by line instead of the dashboard")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow live device state",
	Long: `Keep a session with the SysAP open and show device state as it changes.

The dashboard lists every device object; select a row to toggle switches,
move covers or activate scenes. The session reconnects automatically and
rebuilds the device list after each reconnect.

Without a terminal (or with --plain) every state change is printed as a line.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	plain := plainOutput || !ui.IsTerminal()
	var onState func(from, to session.State)
	if plain {
		onState = func(_, to session.State) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s session %s\n", time.Now().Format(time.TimeOnly), to)
		}
	}

	s, t, err := newSession(ctx, onState)
	if err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	if plain {
		err = watchPlain(ctx, cmd, s.Engine())
	} else {
		err = ui.Watch(ctx, ui.WatchOptions{
			Source: s.Engine(),
			Title:  "free@home " + t.host,
			Status: func() (string, bool) {
				st := s.State()
				return fmt.Sprintf("%s to %s", st, t.host), st == session.StateConnected
			},
		})
	}

	cancel()
	if runErr := <-errc; runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return err
}

func watchPlain(ctx context.Context, cmd *cobra.Command, e *engine.Engine) error {
	events, unsubscribe := ui.Subscribe(e)
	defer unsubscribe()

	out := cmd.OutOrStdout()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			ts := time.Now().Format(time.TimeOnly)
			switch ev.Type {
			case engine.EventRebuilt:
				fmt.Fprintf(out, "%s loaded %d devices\n", ts, len(e.Devices()))
			case engine.EventStateChanged:
				fmt.Fprintf(out, "%s %-24s %-28s %s -> %s (%s)\n",
					ts, ev.Device.LookupKey(), ev.Device.Name(), ev.Old, ev.New, ui.FormatState(ev.Device))
			}
		}
	}
}
