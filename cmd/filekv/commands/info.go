package commands

import (
	"encoding/json"
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/maruel/filekv/internal/cipher"
	"github.com/maruel/filekv/internal/config"
)

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the settings file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := json.MarshalIndent(config.Schema(), "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return err
		},
	}
}

func settingsCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Print the effective settings as YAML, or write them to a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out != "" {
				return config.Save(out, a.settings)
			}
			b, err := yaml.Marshal(&a.settings)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write the settings to this file")
	return cmd
}

func deriveKeyCmd() *cobra.Command {
	var salt string
	cmd := &cobra.Command{
		Use:   "derive-key <passphrase>",
		Short: "Derive a cipher key from a passphrase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := cipher.DeriveKey(args[0], salt)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), key)
			return err
		},
	}
	cmd.Flags().StringVar(&salt, "salt", "filekv", "salt mixed with the passphrase")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			version, goVersion, revision, dirty := getBuildInfo()
			fmt.Fprintf(w, "filekv %s\n", version)
			fmt.Fprintf(w, "  Go version: %s\n", goVersion)
			fmt.Fprintf(w, "  Revision:   %s\n", revision)
			if dirty {
				fmt.Fprintf(w, "  Modified:   true\n")
			}
			return nil
		},
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}
