package classd

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/five82/tally/internal/classapi"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	code        TEXT NOT NULL PRIMARY KEY,
	admin       TEXT NOT NULL,
	variables   TEXT NOT NULL,
	group_names TEXT NOT NULL,
	enabled     INTEGER NOT NULL DEFAULT 0,
	expires     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS points (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	code TEXT NOT NULL,
	grp  INTEGER NOT NULL DEFAULT 0,
	x    REAL NOT NULL,
	y    REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS points_by_code ON points (code, id);
`

// OpenDB opens (creating if needed) the SQLite database at path. The
// special path ":memory:" gives a private in-memory database.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// sqlite serializes writers anyway, and an in-memory database exists
	// per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

type session struct {
	Code      string
	Admin     string
	Variables []string
	Groups    []string
	Enabled   bool
	Expires   time.Time
}

func (s session) mode() classapi.Mode { return classapi.ModeFor(len(s.Variables)) }

func (s session) groupCount() int { return max(1, len(s.Groups)) }

// repo persists sessions and their observations. Grouped observations are
// stored with grp set to the 1-based group index and the value in x; paired
// observations use grp 0.
type repo struct {
	db *sql.DB
}

func (r *repo) create(ctx context.Context, s session) error {
	vars, groups, err := encodeNames(s.Variables, s.Groups)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sessions (code, admin, variables, group_names, enabled, expires) VALUES (?, ?, ?, ?, ?, ?)`,
		s.Code, s.Admin, vars, groups, s.Enabled, s.Expires.UnixNano())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *repo) exists(ctx context.Context, code string) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE code = ?`, code).Scan(&n); err != nil {
		return false, fmt.Errorf("query session: %w", err)
	}
	return n > 0, nil
}

// session loads a session that has not expired by now.
func (r *repo) session(ctx context.Context, code string, now time.Time) (session, error) {
	var (
		s            session
		vars, groups string
		expiresNanos int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT code, admin, variables, group_names, enabled, expires FROM sessions WHERE code = ?`, code).
		Scan(&s.Code, &s.Admin, &vars, &groups, &s.Enabled, &expiresNanos)
	if errors.Is(err, sql.ErrNoRows) {
		return session{}, classapi.ErrSessionNotFound
	}
	if err != nil {
		return session{}, fmt.Errorf("query session: %w", err)
	}
	s.Expires = time.Unix(0, expiresNanos).UTC()
	if !now.Before(s.Expires) {
		return session{}, classapi.ErrSessionNotFound
	}
	if err := json.Unmarshal([]byte(vars), &s.Variables); err != nil {
		return session{}, fmt.Errorf("decode variables: %w", err)
	}
	if err := json.Unmarshal([]byte(groups), &s.Groups); err != nil {
		return session{}, fmt.Errorf("decode groups: %w", err)
	}
	return s, nil
}

func (r *repo) snapshot(ctx context.Context, s session) (classapi.Snapshot, error) {
	snap := classapi.Snapshot{
		Enabled:   s.Enabled,
		Variables: s.Variables,
		Groups:    s.Groups,
	}
	rows, err := r.db.QueryContext(ctx, `SELECT grp, x, y FROM points WHERE code = ? ORDER BY id`, s.Code)
	if err != nil {
		return classapi.Snapshot{}, fmt.Errorf("query points: %w", err)
	}
	defer rows.Close()

	grouped := classapi.Grouped{Values: make([][]float64, s.groupCount())}
	var paired classapi.Paired
	for rows.Next() {
		var (
			grp  int
			x, y float64
		)
		if err := rows.Scan(&grp, &x, &y); err != nil {
			return classapi.Snapshot{}, fmt.Errorf("scan point: %w", err)
		}
		if s.mode() == classapi.ModePaired {
			paired.X = append(paired.X, x)
			paired.Y = append(paired.Y, y)
			continue
		}
		if grp >= 1 && grp <= len(grouped.Values) {
			grouped.Values[grp-1] = append(grouped.Values[grp-1], x)
		}
	}
	if err := rows.Err(); err != nil {
		return classapi.Snapshot{}, fmt.Errorf("read points: %w", err)
	}
	if s.mode() == classapi.ModePaired {
		snap.Data = paired
	} else {
		snap.Data = grouped
	}
	return snap, nil
}

func (r *repo) insertPoints(ctx context.Context, code string, grp int, xs, ys []float64) error {
	return r.tx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO points (code, grp, x, y) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()
		for i, x := range xs {
			var y float64
			if ys != nil {
				y = ys[i]
			}
			if _, err := stmt.ExecContext(ctx, code, grp, x, y); err != nil {
				return fmt.Errorf("insert point: %w", err)
			}
		}
		return nil
	})
}

// deleteOne removes the newest observation matching (grp, x, y) and
// reports whether one existed.
func (r *repo) deleteOne(ctx context.Context, code string, grp int, x, y float64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM points WHERE id = (
			SELECT id FROM points WHERE code = ? AND grp = ? AND x = ? AND y = ? ORDER BY id DESC LIMIT 1
		)`, code, grp, x, y)
	if err != nil {
		return false, fmt.Errorf("delete point: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *repo) deletePoints(ctx context.Context, code string, grp int) error {
	query, args := `DELETE FROM points WHERE code = ?`, []any{code}
	if grp > 0 {
		query += ` AND grp = ?`
		args = append(args, grp)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete points: %w", err)
	}
	return nil
}

func (r *repo) setNames(ctx context.Context, code string, variables, groups []string) error {
	vars, grps, err := encodeNames(variables, groups)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET variables = ?, group_names = ? WHERE code = ?`, vars, grps, code); err != nil {
		return fmt.Errorf("update names: %w", err)
	}
	return nil
}

// removeGroup drops a group's observations, shifts later groups down by one,
// and stores the remaining names.
func (r *repo) removeGroup(ctx context.Context, s session, index int, groups []string) error {
	_, grps, err := encodeNames(s.Variables, groups)
	if err != nil {
		return err
	}
	return r.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM points WHERE code = ? AND grp = ?`, s.Code, index); err != nil {
			return fmt.Errorf("delete group points: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE points SET grp = grp - 1 WHERE code = ? AND grp > ?`, s.Code, index); err != nil {
			return fmt.Errorf("renumber groups: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE sessions SET group_names = ? WHERE code = ?`, grps, s.Code); err != nil {
			return fmt.Errorf("update groups: %w", err)
		}
		return nil
	})
}

func (r *repo) setEnabled(ctx context.Context, code string, enabled bool) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE sessions SET enabled = ? WHERE code = ?`, enabled, code); err != nil {
		return fmt.Errorf("update enabled: %w", err)
	}
	return nil
}

func (r *repo) setExpires(ctx context.Context, code string, expires time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE sessions SET expires = ? WHERE code = ?`, expires.UnixNano(), code); err != nil {
		return fmt.Errorf("update expires: %w", err)
	}
	return nil
}

// purgeExpired deletes sessions (and their observations) that expired
// before now.
func (r *repo) purgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var purged int64
	err := r.tx(ctx, func(tx *sql.Tx) error {
		cutoff := now.UnixNano()
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM points WHERE code IN (SELECT code FROM sessions WHERE expires <= ?)`, cutoff); err != nil {
			return fmt.Errorf("purge points: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE expires <= ?`, cutoff)
		if err != nil {
			return fmt.Errorf("purge sessions: %w", err)
		}
		purged, _ = res.RowsAffected()
		return nil
	})
	return purged, err
}

func (r *repo) tx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func encodeNames(variables, groups []string) (string, string, error) {
	if groups == nil {
		groups = []string{}
	}
	vars, err := json.Marshal(variables)
	if err != nil {
		return "", "", fmt.Errorf("encode variables: %w", err)
	}
	grps, err := json.Marshal(groups)
	if err != nil {
		return "", "", fmt.Errorf("encode groups: %w", err)
	}
	return string(vars), string(grps), nil
}
