package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maruel/filekv/internal/errs"
	"github.com/maruel/filekv/internal/kvstore"
	"github.com/maruel/filekv/internal/value"
)

func getCmd(a *app) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print the value stored under a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, st *kvstore.Store) error {
				v, ok, err := st.GetValue(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("key %q: %w", args[0], errs.ErrNotFound)
				}
				if raw && v.Kind() == value.KindString {
					s, _ := v.AsString()
					_, err = fmt.Fprintln(cmd.OutOrStdout(), s)
					return err
				}
				return a.print(cmd, v)
			})
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print strings without quotes")
	return cmd
}

func setCmd(a *app) *cobra.Command {
	var asString bool
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a value under a key and save the document",
		Long: "Store a value under a key and save the document.\n\n" +
			"The value is parsed as JSON; text that is not valid JSON is stored as a string.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := parseValue(args[1], asString)
			return a.withStore(cmd, func(ctx context.Context, st *kvstore.Store) error {
				if err := loadExisting(ctx, st); err != nil {
					return err
				}
				p, err := st.SaveKey(ctx, args[0], v)
				return waitSaved(ctx, p, err)
			})
		},
	}
	cmd.Flags().BoolVar(&asString, "string", false, "store the value as a string without parsing it")
	return cmd
}

// parseValue decodes text as JSON, falling back to a string.
func parseValue(text string, asString bool) value.Value {
	if !asString {
		var v value.Value
		if err := v.UnmarshalJSON([]byte(text)); err == nil {
			return v
		}
	}
	return value.String(text)
}

func rmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <key>...",
		Short: "Remove keys and save the document",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, st *kvstore.Store) error {
				if err := st.Load(ctx); err != nil {
					return err
				}
				removed := 0
				for _, k := range args {
					ok, err := st.Remove(ctx, k)
					if err != nil {
						return err
					}
					if ok {
						removed++
					}
				}
				if removed == 0 {
					return fmt.Errorf("no such key: %w", errs.ErrNotFound)
				}
				p, err := st.Save(ctx)
				return waitSaved(ctx, p, err)
			})
		},
	}
}

func keysCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List the document keys in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd, func(ctx context.Context, st *kvstore.Store) error {
				keys, err := st.Keys(ctx)
				if err != nil {
					return err
				}
				for _, k := range keys {
					if _, err := fmt.Fprintln(cmd.OutOrStdout(), k); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func valuesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "values",
		Short: "List the document values in order, one JSON value per line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd, func(ctx context.Context, st *kvstore.Store) error {
				values, err := st.Values(ctx)
				if err != nil {
					return err
				}
				for _, v := range values {
					if _, err := fmt.Fprintln(cmd.OutOrStdout(), v.String()); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func clearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every key and save the empty document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd, func(ctx context.Context, st *kvstore.Store) error {
				if err := st.Clear(ctx); err != nil {
					return err
				}
				p, err := st.Save(ctx)
				return waitSaved(ctx, p, err)
			})
		},
	}
}

// print writes v with the configured serializer.
func (a *app) print(cmd *cobra.Command, v value.Value) error {
	ser, err := a.serializer()
	if err != nil {
		return err
	}
	b, err := ser.Marshal(v)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(b)
	return err
}
