package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/maruel/eky/internal/cli"
	"github.com/maruel/eky/internal/store"
	"github.com/spf13/cobra"
)

const usageHint = "Use list, get <key> or set <key> <value>..."

// errUsage is returned when no subcommand is given. The hint is already
// printed, so main only sets the exit status.
var errUsage = errors.New("no subcommand given")

// app holds the options shared by all subcommands.
type app struct {
	ll       *slog.LevelVar
	log      *slog.Logger
	file     string
	logLevel string
	noLock   bool
}

func newRootCmd(ll *slog.LevelVar, stdout, stderr io.Writer) *cobra.Command {
	a := &app{ll: ll, log: newLogger(stderr, ll)}
	root := &cobra.Command{
		Use:   "eky",
		Short: "Personal key-value store",
		Long: `eky stores JSON values under string keys in a single JSON file.

Values given to set are parsed as JSON when possible and stored as plain
strings otherwise.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return setLogLevel(a.ll, a.logLevel)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.ErrOrStderr(), usageHint)
			return errUsage
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetOut(stdout)
	root.SetErr(stderr)
	cli.BindOptions(cli.NewViper("eky"), root.PersistentFlags(), []cli.Opt{
		cli.NewOpt(&a.file, "file", "", "Backing file (default ~/"+store.DefaultFileName+")"),
		cli.NewOpt(&a.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)"),
		cli.NewOpt(&a.noLock, "no-lock", false, "Do not lock the backing file while modifying it"),
	})
	root.AddCommand(
		a.listCmd(),
		a.getCmd(),
		a.setCmd(),
		a.rmCmd(),
		a.clearCmd(),
		a.dumpCmd(),
		a.watchCmd(),
		versionCmd(),
	)
	return root
}

func (a *app) path() (string, error) {
	if a.file != "" {
		return a.file, nil
	}
	return store.DefaultPath()
}

// lock takes the cross-process lock for path unless disabled.
func (a *app) lock(path string) (func() error, error) {
	if a.noLock {
		return func() error { return nil }, nil
	}
	return store.New(path).Lock()
}

// withStore loads the store and calls fn with it. When mutate is set the lock
// is held from before the load until fn returns.
func (a *app) withStore(ctx context.Context, mutate bool, fn func(*store.Store) error) (err error) {
	path, err := a.path()
	if err != nil {
		return err
	}
	if mutate {
		unlock, err := a.lock(path)
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, unlock())
		}()
	}
	s := store.New(path)
	if err := s.Load(); err != nil {
		if !errors.Is(err, store.ErrCorrupt) {
			return err
		}
		a.log.WarnContext(ctx, "Backing file is corrupt, starting with an empty store", "err", err)
	}
	return fn(s)
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print all keys, one per line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), false, func(s *store.Store) error {
				w := cmd.OutOrStdout()
				for k := range s.Keys() {
					if _, err := fmt.Fprintln(w, k); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func (a *app) getCmd() *cobra.Command {
	var strict bool
	var format string
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print the value stored under key",
		Long: `Print the value stored under key as indented JSON.

A missing key prints None. So does a key holding null, false, 0, "", [] or {},
unless --strict is given, in which case the value is printed and a missing key
is an error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			return a.withStore(cmd.Context(), false, func(s *store.Store) error {
				w := cmd.OutOrStdout()
				v, ok := s.Get(args[0])
				if !strict && (!ok || store.IsFalsy(v)) {
					_, err := fmt.Fprintln(w, "None")
					return err
				}
				if !ok {
					return fmt.Errorf("%q: %w", args[0], store.ErrNotFound)
				}
				return printValue(w, v, format)
			})
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Print falsy values and fail on missing keys")
	cmd.Flags().StringVarP(&format, "format", "o", "json", "Output format (json, yaml)")
	return cmd
}

func (a *app) setCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>...",
		Short: "Store a value under key",
		Long: `Store a value under key. Value tokens are joined with single spaces.

The joined value is stored as JSON if it parses as JSON, as a string otherwise.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), true, func(s *store.Store) error {
				return s.Set(args[0], strings.Join(args[1:], " "))
			})
		},
	}
	// Everything after the key is part of the value, including "-1".
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func (a *app) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <key>...",
		Short: "Remove keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), true, func(s *store.Store) error {
				n, err := s.Remove(args...)
				if err != nil {
					return err
				}
				a.log.InfoContext(cmd.Context(), "Removed keys", "count", n)
				return nil
			})
		},
	}
}

func (a *app) clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the backing file",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) (err error) {
			path, err := a.path()
			if err != nil {
				return err
			}
			unlock, err := a.lock(path)
			if err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, unlock())
			}()
			return store.New(path).Clear()
		},
	}
}

func (a *app) dumpCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the whole store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			return a.withStore(cmd.Context(), false, func(s *store.Store) error {
				v, err := s.Snapshot()
				if err != nil {
					return err
				}
				return printValue(cmd.OutOrStdout(), v, format)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "o", "json", "Output format (json, yaml)")
	return cmd
}

func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [key]...",
		Short: "Print the store every time it changes",
		Long: `Print the store every time it changes, until interrupted.

Without arguments all keys are printed. With keys, each is printed with its
compact JSON value, or None when missing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.path()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			w := cmd.OutOrStdout()
			err = store.Watch(ctx, path, func(s *store.Store, err error) {
				if err != nil {
					if !errors.Is(err, store.ErrCorrupt) {
						a.log.WarnContext(ctx, "Failed to reload store", "err", err)
						return
					}
					a.log.WarnContext(ctx, "Backing file is corrupt", "err", err)
				}
				if err := printWatch(w, s, args); err != nil {
					a.log.WarnContext(ctx, "Failed to print store", "err", err)
				}
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func checkFormat(format string) error {
	switch format {
	case "json", "yaml":
		return nil
	default:
		return fmt.Errorf("unknown format: %q", format)
	}
}

func printValue(w io.Writer, v json.RawMessage, format string) error {
	if format == "yaml" {
		b, err := store.ToYAML(v)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	}
	_, err := fmt.Fprintln(w, store.Indent(v))
	return err
}

// printWatch prints one snapshot of s for the watch command.
func printWatch(w io.Writer, s *store.Store, keys []string) error {
	var b strings.Builder
	b.WriteString("---\n")
	if len(keys) == 0 {
		for k := range s.Keys() {
			b.WriteString(k)
			b.WriteByte('\n')
		}
	}
	for _, k := range keys {
		v, ok := s.Get(k)
		if !ok {
			v = json.RawMessage("None")
		}
		fmt.Fprintf(&b, "%s: %s\n", k, v)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
