package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/maruel/filekv/internal/kvstore"
	"github.com/maruel/filekv/internal/monitor"
)

func watchCmd(a *app) *cobra.Command {
	var quiet time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print a line each time the document file settled after a write",
		Long: "Print a line each time the document file settled after a write.\n\n" +
			"A write settles once the file was left untouched for the quiet period. Runs until interrupted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			events := make(chan monitor.Event, 16)
			opts := []kvstore.Option{kvstore.WithOnSettled(func(ev monitor.Event) {
				select {
				case events <- ev:
				default:
					slog.Warn("Dropped settled event", "path", ev.Path)
				}
			})}
			if quiet > 0 {
				opts = append(opts, kvstore.WithQuietPeriod(quiet))
			}
			st, err := a.open(ctx, opts...)
			if err != nil {
				return err
			}
			defer st.Deinitialize()
			slog.InfoContext(ctx, "Watching", "path", st.Path())
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev := <-events:
					if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", ev.ModTime.Format(time.RFC3339Nano), ev.Path); err != nil {
						return err
					}
				}
			}
		},
	}
	cmd.Flags().DurationVar(&quiet, "quiet", 0, "quiet period; defaults to the settings value")
	return cmd
}
