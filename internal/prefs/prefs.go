// Package prefs persists per-user tally state between runs: the chosen
// theme, recently joined session codes and the admin tokens issued when
// this user created a session.
//
// The file lives at ~/.config/tally/prefs.toml unless a path is given.
// It is best effort: an unreadable or corrupt file yields defaults, never
// an error, so a bad prefs file cannot keep anyone out of a class.
package prefs

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	defaultPrefsPath = "~/.config/tally/prefs.toml"
	defaultTheme     = "Nightfox"

	// maxRecent bounds the remembered session list. Tokens for codes that
	// fall off the list are dropped with them.
	maxRecent = 8
)

// Prefs is the on-disk preference document.
type Prefs struct {
	Theme string `toml:"theme"`
	// LastCode is the session joined most recently; join and info default
	// to it when no code is given.
	LastCode string `toml:"last_code,omitempty"`
	// Recent lists remembered codes, newest first.
	Recent []string `toml:"recent,omitempty"`
	// AdminTokens maps session codes to admin tokens issued on create.
	AdminTokens map[string]string `toml:"admin_tokens,omitempty"`
}

// DefaultPath returns the default preferences file path.
func DefaultPath() string { return defaultPrefsPath }

func key(code string) string { return strings.ToUpper(strings.TrimSpace(code)) }

// AdminToken returns the remembered admin token for code, if any.
func (p Prefs) AdminToken(code string) string {
	return p.AdminTokens[key(code)]
}

// Remember makes code the last session and, when admin is non-empty,
// stores its admin token. An empty admin keeps any token already held.
func (p *Prefs) Remember(code, admin string) {
	code = key(code)
	if code == "" {
		return
	}
	p.LastCode = code
	p.Recent = slices.DeleteFunc(p.Recent, func(c string) bool { return key(c) == code })
	p.Recent = slices.Insert(p.Recent, 0, code)
	if len(p.Recent) > maxRecent {
		for _, dropped := range p.Recent[maxRecent:] {
			delete(p.AdminTokens, key(dropped))
		}
		p.Recent = p.Recent[:maxRecent]
	}
	if admin != "" {
		if p.AdminTokens == nil {
			p.AdminTokens = make(map[string]string)
		}
		p.AdminTokens[code] = admin
	}
}

// Forget removes everything remembered about code. It is used once the
// store reports the session gone.
func (p *Prefs) Forget(code string) {
	code = key(code)
	if code == "" {
		return
	}
	delete(p.AdminTokens, code)
	p.Recent = slices.DeleteFunc(p.Recent, func(c string) bool { return key(c) == code })
	if p.LastCode == code {
		p.LastCode = ""
		if len(p.Recent) > 0 {
			p.LastCode = p.Recent[0]
		}
	}
}

// Load reads preferences from path. Missing, unreadable and malformed files
// all produce defaults.
func Load(path string) (Prefs, error) {
	defaults := Prefs{Theme: defaultTheme}

	resolved, err := resolvePath(path)
	if err != nil {
		return defaults, nil
	}
	raw, err := os.ReadFile(resolved)
	if err != nil {
		return defaults, nil
	}

	var p Prefs
	if err := toml.Unmarshal(raw, &p); err != nil {
		return defaults, nil
	}
	if strings.TrimSpace(p.Theme) == "" {
		p.Theme = defaultTheme
	}
	return p, nil
}

// Save writes p to path through a temporary file so a crash never leaves a
// truncated document. Admin tokens are secrets, so the file is owner-only.
func Save(path string, p Prefs) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	raw, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".prefs-*.toml")
	if err != nil {
		return fmt.Errorf("create temp prefs: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod prefs: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close prefs: %w", err)
	}
	if err := os.Rename(tmp.Name(), resolved); err != nil {
		return fmt.Errorf("replace prefs: %w", err)
	}
	return nil
}

// resolvePath expands a leading ~ and makes path absolute. Blank selects
// the default location.
func resolvePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = defaultPrefsPath
	}
	if rest, ok := strings.CutPrefix(path, "~"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		path = filepath.Join(home, rest)
	}
	return filepath.Abs(path)
}
