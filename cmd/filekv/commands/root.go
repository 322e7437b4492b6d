// Package commands implements the filekv command line.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/maruel/filekv/internal/config"
	"github.com/maruel/filekv/internal/errs"
	"github.com/maruel/filekv/internal/filestore"
	"github.com/maruel/filekv/internal/kvstore"
	"github.com/maruel/filekv/internal/serial"
)

// options holds the persistent flags.
type options struct {
	configPath string
	dir        string
	pathType   string
	name       string
	file       string
	ext        string
	format     string
	key        string
	encrypt    bool
	shared     bool
	logLevel   string
}

// app is the state shared by all subcommands once flags are parsed.
type app struct {
	opts     options
	settings config.Settings
	level    *slog.LevelVar
}

// Execute runs the command line with args.
func Execute(ctx context.Context, args []string) error {
	root := newRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	a := &app{level: &slog.LevelVar{}}
	root := &cobra.Command{
		Use:           "filekv",
		Short:         "Read and write keyed documents stored in local files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setupLogging(cmd); err != nil {
				return err
			}
			s, err := a.resolveSettings(cmd)
			if err != nil {
				return err
			}
			a.settings = s
			return nil
		},
	}
	f := root.PersistentFlags()
	f.StringVar(&a.opts.configPath, "config", "", "settings file (YAML)")
	f.StringVar(&a.opts.dir, "dir", "", "base directory; implies --path-type=custom")
	f.StringVar(&a.opts.pathType, "path-type", "", "base directory kind: root, assets, custom, default or persistent")
	f.StringVarP(&a.opts.name, "name", "n", "data", "document name, without extension")
	f.StringVar(&a.opts.file, "file", "", "explicit document path; overrides --dir and --name")
	f.StringVar(&a.opts.ext, "ext", "", "document file extension")
	f.StringVar(&a.opts.format, "format", "", "serializer: json, yaml or strict")
	f.StringVar(&a.opts.key, "key", "", "cipher key")
	f.BoolVar(&a.opts.encrypt, "encrypt", false, "encrypt the document")
	f.BoolVar(&a.opts.shared, "shared", false, "do not take advisory file locks")
	f.StringVar(&a.opts.logLevel, "log-level", "info", "log level: debug, info, warn or error")

	root.AddCommand(
		getCmd(a),
		setCmd(a),
		rmCmd(a),
		keysCmd(a),
		valuesCmd(a),
		clearCmd(a),
		rawCmd(a),
		writeRawCmd(a),
		existsCmd(a),
		deleteCmd(a),
		lockedCmd(a),
		filesCmd(a),
		watchCmd(a),
		schemaCmd(),
		settingsCmd(a),
		deriveKeyCmd(),
		versionCmd(),
	)
	return root
}

// resolveSettings loads the settings file when given then applies the flags
// that were explicitly set.
func (a *app) resolveSettings(cmd *cobra.Command) (config.Settings, error) {
	s := config.Defaults()
	if a.opts.configPath != "" {
		var err error
		if s, err = config.Load(a.opts.configPath); err != nil {
			return config.Settings{}, err
		}
	}
	f := cmd.Flags()
	if a.opts.dir != "" {
		s.PathType = config.PathCustom
		s.Path = a.opts.dir
	}
	if f.Changed("path-type") {
		pt, err := config.ParsePathType(a.opts.pathType)
		if err != nil {
			return config.Settings{}, err
		}
		s.PathType = pt
	}
	if f.Changed("format") {
		s.Serializer = a.opts.format
		if !f.Changed("ext") && a.opts.format == "yaml" {
			s.Extension = "yaml"
		}
	}
	if f.Changed("ext") {
		s.Extension = a.opts.ext
	}
	if f.Changed("key") {
		s.Key = a.opts.key
	}
	if f.Changed("encrypt") {
		s.Encryption = a.opts.encrypt
	}
	if err := s.Validate(); err != nil {
		return config.Settings{}, err
	}
	return s, nil
}

func (a *app) lockMode() filestore.LockMode {
	if a.opts.shared {
		return filestore.Shared
	}
	return filestore.Exclusive
}

// open returns a store bound to the selected document. The caller must
// Close it.
func (a *app) open(ctx context.Context, opts ...kvstore.Option) (*kvstore.Store, error) {
	st, err := kvstore.New(a.settings, opts...)
	if err != nil {
		return nil, err
	}
	if a.opts.file != "" {
		err = st.InitializePath(ctx, a.opts.file, a.lockMode())
	} else {
		err = st.Initialize(ctx, a.opts.name, a.lockMode())
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

// withStore opens the store, runs fn and closes the store, waiting for
// in-flight saves.
func (a *app) withStore(cmd *cobra.Command, fn func(ctx context.Context, st *kvstore.Store) error) error {
	ctx := cmd.Context()
	st, err := a.open(ctx)
	if err != nil {
		return err
	}
	err = fn(ctx, st)
	if err2 := st.Close(context.WithoutCancel(ctx)); err == nil {
		err = err2
	}
	return err
}

func (a *app) serializer() (serial.Serializer, error) {
	return serial.Lookup(a.settings.Serializer)
}

// loadExisting loads the document, accepting a missing file as empty.
func loadExisting(ctx context.Context, st *kvstore.Store) error {
	if err := st.Load(ctx); err != nil && !errors.Is(err, errs.ErrNotFound) {
		return err
	}
	return nil
}

// waitSaved waits for a save and turns a dropped save into an error.
func waitSaved(ctx context.Context, p *filestore.Pending, err error) error {
	if err != nil {
		return err
	}
	r, err := p.Wait(ctx)
	if err != nil {
		return err
	}
	if r.Err != nil {
		return r.Err
	}
	if r.Skipped {
		return fmt.Errorf("%s: save dropped: %w", r.Path, errs.ErrLocked)
	}
	slog.DebugContext(ctx, "Saved", "id", r.ID.String(), "path", r.Path, "bytes", r.Bytes)
	return nil
}
