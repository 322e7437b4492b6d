package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maruel/filekv/internal/kvstore"
)

func rawCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "raw",
		Short: "Print the document file verbatim",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd, func(_ context.Context, st *kvstore.Store) error {
				text, err := st.LoadRaw()
				if err != nil {
					return err
				}
				_, err = io.WriteString(cmd.OutOrStdout(), text)
				return err
			})
		},
	}
}

func writeRawCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "write-raw [text]",
		Short: "Replace the document file with text, or stdin when omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var text string
			if len(args) == 1 {
				text = args[0]
			} else {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				text = string(b)
			}
			return a.withStore(cmd, func(ctx context.Context, st *kvstore.Store) error {
				p, err := st.SaveRaw(ctx, text)
				return waitSaved(ctx, p, err)
			})
		},
	}
}

func existsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "exists",
		Short: "Print whether the document file exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd, func(_ context.Context, st *kvstore.Store) error {
				ok, err := st.Exists()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), ok)
				return err
			})
		},
	}
}

func deleteCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the document file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd, func(_ context.Context, st *kvstore.Store) error {
				var ok bool
				var err error
				if all {
					ok, err = st.Delete()
				} else {
					ok, err = st.DeleteFile()
				}
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), ok)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "delete the whole directory containing the document")
	return cmd
}

func lockedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "locked",
		Short: "Print whether another process holds the document file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd, func(ctx context.Context, st *kvstore.Store) error {
				ok, err := st.IsLocked(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), ok)
				return err
			})
		},
	}
}

func filesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "files [pattern]",
		Short: "List the files next to the document, optionally filtered by a glob",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := ""
			if len(args) == 1 {
				pattern = args[0]
			}
			return a.withStore(cmd, func(_ context.Context, st *kvstore.Store) error {
				names, err := st.Files(pattern)
				if err != nil {
					return err
				}
				if len(names) != 0 {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.Join(names, "\n"))
				}
				return err
			})
		},
	}
}
