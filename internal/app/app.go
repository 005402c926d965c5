package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/five82/tally/internal/classapi"
	"github.com/five82/tally/internal/config"
	"github.com/five82/tally/internal/engine"
	"github.com/five82/tally/internal/logging"
	"github.com/five82/tally/internal/prefs"
	"github.com/five82/tally/internal/state"
	"github.com/five82/tally/internal/ui"
)

// ErrNoSession is returned when neither a code nor a remembered session is
// available.
var ErrNoSession = errors.New("no session code given and none remembered")

// Options configure a tally run.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/tally/prefs.toml
	StoreURL   string // overrides store_url from the config file

	// Code and Admin select the session to join. An empty Code falls back
	// to the last remembered session; an empty Admin to its remembered
	// token.
	Code  string
	Admin string
	// Create, when set, creates a new session and joins it as admin.
	Create *classapi.NewSession
}

// Run joins (or creates) a session and drives the TUI until the user quits
// or ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.StoreURL != "" {
		cfg.StoreURL = opts.StoreURL
	}

	logger, closer, err := logging.Open(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer func() { _ = closer.Close() }()

	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}
	userPrefs, _ := prefs.Load(prefsPath)

	client, err := classapi.NewClient(cfg.StoreURL)
	if err != nil {
		return fmt.Errorf("init store client: %w", err)
	}

	store := &state.Store{}
	session, err := Connect(ctx, client, store, logger, cfg.EngineConfig(), userPrefs, opts)
	if err != nil {
		if errors.Is(err, classapi.ErrSessionNotFound) && opts.Create == nil {
			forgetSession(prefsPath, userPrefs, opts.Code, logger)
		}
		return err
	}
	defer session.Close()

	userPrefs.Remember(session.Code(), store.Snapshot().Admin)
	if err := prefs.Save(prefsPath, userPrefs); err != nil {
		logger.Warn("save preferences failed", "error", err)
	}

	return ui.Run(ui.Options{
		Context:   ctx,
		Session:   session,
		Store:     store,
		ThemeName: userPrefs.Theme,
		PrefsPath: prefsPath,
		LogPath:   cfg.LogPath,
	})
}

// Connect creates or joins the session selected by opts, reporting into
// store.
func Connect(ctx context.Context, remote classapi.Remote, store *state.Store, logger *slog.Logger, cfg engine.Config, userPrefs prefs.Prefs, opts Options) (*engine.Session, error) {
	return connect(ctx, engine.Options{
		Remote: remote,
		Hooks:  newStoreHooks(store, logger),
		Logger: logger,
		Config: cfg,
	}, userPrefs, opts)
}

func connect(ctx context.Context, engineOpts engine.Options, userPrefs prefs.Prefs, opts Options) (*engine.Session, error) {
	logger := engineOpts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.Create != nil {
		session, err := engine.Create(ctx, *opts.Create, engineOpts)
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		logger.Info("created session", "session", session.Code())
		return session, nil
	}

	code := opts.Code
	if code == "" {
		code = userPrefs.LastCode
	}
	if classapi.NormalizeCode(code) == "" {
		return nil, ErrNoSession
	}
	admin := opts.Admin
	if admin == "" {
		admin = userPrefs.AdminToken(code)
	}

	session, err := engine.Join(ctx, code, admin, engineOpts)
	if err != nil {
		return nil, fmt.Errorf("join session: %w", err)
	}
	return session, nil
}

// forgetSession drops a session the store no longer knows from the
// remembered list.
func forgetSession(path string, userPrefs prefs.Prefs, code string, logger *slog.Logger) {
	if code == "" {
		code = userPrefs.LastCode
	}
	userPrefs.Forget(code)
	if err := prefs.Save(path, userPrefs); err != nil {
		logger.Warn("save preferences failed", "error", err)
		return
	}
	logger.Info("forgot expired session", "session", classapi.NormalizeCode(code))
}
