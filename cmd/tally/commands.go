package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/five82/tally/internal/app"
	"github.com/five82/tally/internal/classapi"
	"github.com/five82/tally/internal/classd"
	"github.com/five82/tally/internal/config"
	"github.com/five82/tally/internal/export"
	"github.com/five82/tally/internal/logging"
	"github.com/five82/tally/internal/prefs"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	prefsPath  string
	storeURL   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "tally",
		Short: "Collect class data together in real time",
		Long: `Tally lets a class enter observations into a shared session. Everyone
sees the combined data refresh as it arrives; the session admin controls
when collection is open.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "config file (default ~/.config/tally/config.toml)")
	root.PersistentFlags().StringVar(&flags.prefsPath, "prefs", "", "preferences file (default ~/.config/tally/prefs.toml)")
	root.PersistentFlags().StringVar(&flags.storeURL, "store", "", "session store URL (overrides store_url)")

	root.AddCommand(
		newJoinCmd(flags),
		newCreateCmd(flags),
		newInfoCmd(flags),
		newExtendCmd(flags),
		newExportCmd(flags),
		newServeCmd(flags),
	)
	return root
}

func newJoinCmd(flags *globalFlags) *cobra.Command {
	var admin string
	cmd := &cobra.Command{
		Use:   "join [code]",
		Short: "Join a session (defaults to the last one)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := flags.appOptions()
			if len(args) == 1 {
				opts.Code = args[0]
			}
			opts.Admin = admin
			return app.Run(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&admin, "admin", "", "admin token (defaults to the remembered token)")
	return cmd
}

func newCreateCmd(flags *globalFlags) *cobra.Command {
	var spec classapi.NewSession
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session and join it as admin",
		Example: `  tally create --variable Height --group Control --group Treatment
  tally create --variable "Arm span" --variable Height`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch n := len(spec.Variables); {
			case n == 0 || n > 2:
				return errors.New("give one --variable for grouped data or two for paired data")
			case n == 2 && len(spec.Groups) > 0:
				return errors.New("paired sessions cannot have groups")
			}
			opts := flags.appOptions()
			opts.Create = &spec
			return app.Run(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringArrayVarP(&spec.Variables, "variable", "v", nil, "variable name (repeat for paired data)")
	cmd.Flags().StringArrayVarP(&spec.Groups, "group", "g", nil, "group name (repeatable)")
	return cmd
}

func newInfoCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info [code]",
		Short: "Show session details",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, userPrefs, err := flags.client()
			if err != nil {
				return err
			}
			code, err := sessionCode(args, userPrefs)
			if err != nil {
				return err
			}
			info, err := client.LookupSession(cmd.Context(), code, userPrefs.AdminToken(code))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			field := func(label, value string) {
				fmt.Fprintf(out, "%-12s%s\n", label+":", value)
			}
			field("Session", info.Code)
			field("Mode", info.Mode().String())
			field("Variables", strings.Join(info.Variables, ", "))
			if len(info.Groups) > 0 {
				field("Groups", strings.Join(info.Groups, ", "))
			}
			collection := "closed"
			if info.Enabled {
				collection = "open"
			}
			field("Collection", collection)
			if !info.Expires.IsZero() {
				field("Expires", info.Expires.Local().Format(time.RFC1123))
			}
			if info.AdminValid {
				field("Admin", "yes")
			}
			return nil
		},
	}
}

func newExtendCmd(flags *globalFlags) *cobra.Command {
	var admin string
	cmd := &cobra.Command{
		Use:   "extend [code]",
		Short: "Push back a session's expiry (admin)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, userPrefs, err := flags.client()
			if err != nil {
				return err
			}
			code, err := sessionCode(args, userPrefs)
			if err != nil {
				return err
			}
			if admin == "" {
				admin = userPrefs.AdminToken(code)
			}
			if admin == "" {
				return fmt.Errorf("no admin token remembered for %s; pass --admin", code)
			}
			expires, err := client.ExtendExpiration(cmd.Context(), code, admin)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s now expires %s\n", code, expires.Local().Format(time.RFC1123))
			return nil
		},
	}
	cmd.Flags().StringVar(&admin, "admin", "", "admin token (defaults to the remembered token)")
	return cmd
}

func newExportCmd(flags *globalFlags) *cobra.Command {
	var (
		formatName string
		output     string
	)
	cmd := &cobra.Command{
		Use:   "export [code]",
		Short: "Write session data as CSV, JSON, or YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := export.ParseFormat(formatName)
			if err != nil {
				return err
			}
			client, userPrefs, err := flags.client()
			if err != nil {
				return err
			}
			code, err := sessionCode(args, userPrefs)
			if err != nil {
				return err
			}
			snap, err := client.FetchSnapshot(cmd.Context(), code, classapi.FetchOptions{BypassCache: true})
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				return export.Write(cmd.OutOrStdout(), format, code, snap)
			}
			file, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create export file: %w", err)
			}
			if err := export.Write(file, format, code, snap); err != nil {
				_ = file.Close()
				return err
			}
			return file.Close()
		},
	}
	cmd.Flags().StringVarP(&formatName, "format", "f", string(export.FormatCSV), "output format ("+formatNames()+")")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	var listen, database string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a session store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if listen == "" {
				listen = cfg.Server.Listen
			}
			if database == "" {
				database = cfg.Server.Database
			}

			logger, closer, err := logging.Open("", cfg.LogLevel)
			if err != nil {
				return err
			}
			defer closer.Close()

			if database != ":memory:" {
				if err := os.MkdirAll(filepath.Dir(database), 0o755); err != nil {
					return fmt.Errorf("create database directory: %w", err)
				}
			}
			db, err := classd.OpenDB(database)
			if err != nil {
				return err
			}
			defer db.Close()

			server := classd.New(db, classd.Options{
				CacheTTL:   cfg.Server.CacheTTL,
				SessionTTL: cfg.Server.SessionTTL,
				Logger:     logger,
			})
			logger.Info("session store starting", "database", database)
			return server.Serve(cmd.Context(), listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides server.listen)")
	cmd.Flags().StringVar(&database, "db", "", "SQLite database path (overrides server.database)")
	return cmd
}

func formatNames() string {
	names := make([]string, len(export.Formats))
	for i, f := range export.Formats {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

func (f *globalFlags) appOptions() app.Options {
	return app.Options{
		ConfigPath: f.configPath,
		PrefsPath:  f.prefsPath,
		StoreURL:   f.storeURL,
	}
}

// client builds a store client from config and the --store override, and
// loads preferences for code and token defaults.
func (f *globalFlags) client() (*classapi.Client, prefs.Prefs, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, prefs.Prefs{}, fmt.Errorf("load config: %w", err)
	}
	storeURL := cfg.StoreURL
	if f.storeURL != "" {
		storeURL = f.storeURL
	}
	client, err := classapi.NewClient(storeURL)
	if err != nil {
		return nil, prefs.Prefs{}, fmt.Errorf("init store client: %w", err)
	}

	prefsPath := f.prefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}
	userPrefs, err := prefs.Load(prefsPath)
	if err != nil {
		return nil, prefs.Prefs{}, err
	}
	return client, userPrefs, nil
}

func sessionCode(args []string, userPrefs prefs.Prefs) (string, error) {
	if len(args) == 1 {
		if code := classapi.NormalizeCode(args[0]); code != "" {
			return code, nil
		}
	}
	if userPrefs.LastCode != "" {
		return userPrefs.LastCode, nil
	}
	return "", app.ErrNoSession
}
