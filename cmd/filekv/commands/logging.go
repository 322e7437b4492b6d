package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// setupLogging installs a tint handler on stderr as the default logger.
func (a *app) setupLogging(cmd *cobra.Command) error {
	switch strings.ToLower(a.opts.logLevel) {
	case "debug":
		a.level.Set(slog.LevelDebug)
	case "", "info":
		a.level.Set(slog.LevelInfo)
	case "warn":
		a.level.Set(slog.LevelWarn)
	case "error":
		a.level.Set(slog.LevelError)
	default:
		return fmt.Errorf("invalid log level %q", a.opts.logLevel)
	}
	w := cmd.ErrOrStderr()
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
		w = colorable.NewColorable(f)
	}
	logger := slog.New(tint.NewHandler(w, &tint.Options{
		Level:       a.level,
		TimeFormat:  "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:     noColor,
		ReplaceAttr: dropZero,
	}))
	slog.SetDefault(logger)
	return nil
}

// dropZero removes attributes holding a zero value.
func dropZero(_ []string, a slog.Attr) slog.Attr {
	skip := false
	switch t := a.Value.Any().(type) {
	case string:
		skip = t == ""
	case bool:
		skip = !t
	case uint64:
		skip = t == 0
	case int64:
		skip = t == 0
	case float64:
		skip = t == 0
	case time.Time:
		skip = t.IsZero()
	case time.Duration:
		skip = t == 0
	case nil:
		skip = true
	}
	if skip {
		return slog.Attr{}
	}
	return a
}
