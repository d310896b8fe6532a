package commands

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// debounceWindow coalesces editor write bursts into one revalidation.
const debounceWindow = 250 * time.Millisecond

func newDevCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Development mode commands",
		Long:  `Commands for local runbook development.`,
	}

	cmd.AddCommand(newDevWatchCommand())

	return cmd
}

func newDevWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <runbook>",
		Short: "Revalidate a runbook on every change",
		Long: `Watch a runbook file and rebuild its execution plan whenever it
changes. Planning errors are reported immediately, which makes the edit
cycle on large runbooks much shorter than running validate by hand.`,
		Example: `  veriflow dev watch compliance.yaml`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ctx := cmd.Context()
			path := args[0]

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return err
			}
			defer watcher.Close()

			// Watch the directory: editors replace files on save, which
			// drops a watch registered on the file itself.
			if err := watcher.Add(filepath.Dir(path)); err != nil {
				return err
			}

			check := func() {
				if _, _, err := loadAndPlan(ctx, path, log.Logger); err != nil {
					log.Error().Err(err).Str("runbook", path).Msg("runbook invalid")
					return
				}
				log.Info().Str("runbook", path).Msg("runbook valid")
			}
			check()

			var timer *time.Timer
			pending := make(chan struct{}, 1)
			for {
				select {
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if filepath.Clean(event.Name) != filepath.Clean(path) {
						continue
					}
					if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
						continue
					}
					if timer != nil {
						timer.Stop()
					}
					timer = time.AfterFunc(debounceWindow, func() {
						select {
						case pending <- struct{}{}:
						default:
						}
					})
				case <-pending:
					check()
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					log.Warn().Err(err).Msg("watch error")
				case <-ctx.Done():
					return nil
				}
			}
		},
	}

	return cmd
}
