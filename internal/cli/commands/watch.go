package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/structon/internal/loader"
)

const watchDebounce = 200 * time.Millisecond

// WatchOptions holds options for the watch command.
type WatchOptions struct {
	Set []string
}

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	opts := &WatchOptions{}

	cmd := &cobra.Command{
		Use:   "watch [unit-file]",
		Short: "Re-run units when their files change",
		Long: `Watch a unit file, or the whole units directory, and re-run each unit
whenever its file is written. Parse errors are reported without
stopping the watch.`,
		Example: `  # Watch the units directory
  structon watch

  # Watch a single unit file
  structon watch units/feed_watcher.json

  # Watch with initial values
  structon watch units/feed_watcher.json --set feed=news`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, args, opts)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "Initial values as key=value (repeatable)")
	return cmd
}

func runWatch(cmd *cobra.Command, args []string, opts *WatchOptions) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	ctx := cmd.Context()

	initial, err := parseSetValues(opts.Set)
	if err != nil {
		return err
	}

	target := cc.Cfg.UnitsDir
	single := false
	if len(args) == 1 {
		target = args[0]
		single = true
	}
	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("cannot watch %s: %w", target, err)
	}
	if info.IsDir() {
		single = false
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watching the parent directory catches editors that replace the
	// file on save instead of writing in place.
	watchDir := target
	if single {
		watchDir = filepath.Dir(target)
	}
	if err := watcher.Add(watchDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", watchDir, err)
	}

	r := cc.Renderer
	r.Printf("Watching %s (Ctrl+C to stop)\n", target)

	// Run everything once so the first feedback does not wait for an edit.
	if single {
		watchRun(ctx, cc, target, initial)
	} else {
		discovered, err := loader.Discover(target)
		if err != nil {
			r.Error(err.Error())
		} else {
			for _, d := range discovered {
				watchRun(ctx, cc, d.Path, initial)
			}
		}
	}

	pending := make(map[string]struct{})
	debounce := time.NewTimer(time.Hour)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !isUnitFile(event.Name) {
				continue
			}
			if single && filepath.Clean(event.Name) != filepath.Clean(target) {
				continue
			}
			pending[event.Name] = struct{}{}
			debounce.Reset(watchDebounce)

		case <-debounce.C:
			for path := range pending {
				delete(pending, path)
				watchRun(ctx, cc, path, initial)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.Warning(fmt.Sprintf("watch error: %v", err))
		}
	}
}

func isUnitFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// watchRun parses, saves, and executes one unit file, reporting the
// outcome on a single line.
func watchRun(ctx context.Context, cc *CommandContext, path string, initial map[string]any) {
	r := cc.Renderer
	stamp := time.Now().Format("15:04:05")

	u, err := loader.ParseFile(path)
	if err != nil {
		r.StatusLine(fmt.Sprintf("%s %s", stamp, filepath.Base(path)), "failed", err.Error())
		return
	}
	if err := cc.Store.SaveUnit(ctx, u); err != nil {
		r.StatusLine(fmt.Sprintf("%s %s", stamp, u.ID), "failed", err.Error())
		return
	}

	start := time.Now()
	result, err := cc.Engine.Execute(ctx, u, initial)
	elapsed := time.Since(start).Round(time.Millisecond)
	switch {
	case err != nil:
		r.StatusLine(fmt.Sprintf("%s %s", stamp, u.ID), "failed", err.Error())
	case !result.Success:
		r.StatusLine(fmt.Sprintf("%s %s", stamp, u.ID), "failed",
			fmt.Sprintf("%d of %d nodes failed (%s)", len(result.FailedNodes), len(result.Trace), elapsed))
	default:
		r.StatusLine(fmt.Sprintf("%s %s", stamp, u.ID), "success",
			fmt.Sprintf("%d nodes in %s", len(result.Trace), elapsed))
	}
}
