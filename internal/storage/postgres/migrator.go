package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed sql/migrations/*.sql
var migrationsFS embed.FS

// Ключ advisory-блокировки, чтобы миграции не запускались параллельно
// несколькими экземплярами order-api или migrate.
const migrationLockKey = int64(0x6f70732d) // "ops-"

const migrationLedgerDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// revision — пара up/down SQL-файлов одной версии схемы.
type revision struct {
	Version int64
	Name    string
	Up      string
	Down    string
}

// MigrationState — текущая версия схемы и число применённых ревизий.
type MigrationState struct {
	Version int64
	Applied int
}

// MigrateUp применяет недостающие ревизии по возрастанию версии.
// steps=0 — применить все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.withMigrationLock(ctx, func(conn *sql.Conn) error {
		revisions, err := readRevisions(migrationsFS)
		if err != nil {
			return err
		}

		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}

		done := 0
		for _, rev := range revisions {
			if applied[rev.Version] {
				continue
			}
			if steps > 0 && done >= steps {
				break
			}
			if err := applyRevision(ctx, conn, rev, true); err != nil {
				return err
			}
			done++
		}
		return nil
	})
}

// MigrateDown откатывает steps последних ревизий (минимум одну).
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.withMigrationLock(ctx, func(conn *sql.Conn) error {
		revisions, err := readRevisions(migrationsFS)
		if err != nil {
			return err
		}
		byVersion := make(map[int64]revision, len(revisions))
		for _, rev := range revisions {
			byVersion[rev.Version] = rev
		}

		rows, err := conn.QueryContext(ctx, `
			SELECT version FROM schema_migrations
			ORDER BY version DESC
			LIMIT $1
		`, steps)
		if err != nil {
			return fmt.Errorf("query revisions to rollback: %w", err)
		}
		defer rows.Close()

		var targets []int64
		for rows.Next() {
			var version int64
			if err := rows.Scan(&version); err != nil {
				return fmt.Errorf("scan revision version: %w", err)
			}
			targets = append(targets, version)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate revisions to rollback: %w", err)
		}

		for _, version := range targets {
			rev, ok := byVersion[version]
			if !ok {
				return fmt.Errorf("applied revision %d has no migration files", version)
			}
			if err := applyRevision(ctx, conn, rev, false); err != nil {
				return err
			}
		}
		return nil
	})
}

// MigrationStatus возвращает версию схемы и число применённых ревизий.
func (s *Store) MigrationStatus(ctx context.Context) (MigrationState, error) {
	if s == nil || s.db == nil {
		return MigrationState{}, errors.New("postgres store is not initialized")
	}

	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(queryCtx, migrationLedgerDDL); err != nil {
		return MigrationState{}, fmt.Errorf("ensure migration ledger: %w", err)
	}

	var state MigrationState
	err := s.db.QueryRowContext(queryCtx, `
		SELECT COALESCE(MAX(version), 0), COUNT(*)
		FROM schema_migrations
	`).Scan(&state.Version, &state.Applied)
	if err != nil {
		return MigrationState{}, fmt.Errorf("query migration state: %w", err)
	}
	return state, nil
}

// withMigrationLock выполняет fn на выделенном соединении под advisory-блокировкой.
func (s *Store) withMigrationLock(ctx context.Context, fn func(conn *sql.Conn) error) error {
	if s == nil || s.db == nil {
		return errors.New("postgres store is not initialized")
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockKey)
	}()

	if _, err := conn.ExecContext(ctx, migrationLedgerDDL); err != nil {
		return fmt.Errorf("ensure migration ledger: %w", err)
	}
	return fn(conn)
}

// applyRevision выполняет SQL-ревизию и правит ledger в одной транзакции.
func applyRevision(ctx context.Context, conn *sql.Conn, rev revision, up bool) error {
	label := fmt.Sprintf("%d_%s", rev.Version, rev.Name)

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx for revision %s: %w", label, err)
	}

	body := rev.Up
	ledger := `INSERT INTO schema_migrations (version, name, applied_at) VALUES ($1, $2, NOW())`
	ledgerArgs := []interface{}{rev.Version, rev.Name}
	if !up {
		body = rev.Down
		ledger = `DELETE FROM schema_migrations WHERE version = $1`
		ledgerArgs = []interface{}{rev.Version}
	}

	if _, err := tx.ExecContext(ctx, body); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("execute revision %s: %w", label, err)
	}
	if _, err := tx.ExecContext(ctx, ledger, ledgerArgs...); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record revision %s: %w", label, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit revision %s: %w", label, err)
	}
	return nil
}

func appliedVersions(ctx context.Context, conn *sql.Conn) (map[int64]bool, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied revisions: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]bool)
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied revision: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied revisions: %w", err)
	}
	return applied, nil
}

// readRevisions собирает ревизии из каталога sql/migrations.
// Имя файла: <version>_<name>.up.sql либо <version>_<name>.down.sql,
// у каждой версии должны быть обе стороны.
func readRevisions(fsys fs.FS) ([]revision, error) {
	files, err := fs.Glob(fsys, "sql/migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migration files: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no migration files found")
	}

	byVersion := make(map[int64]*revision)
	for _, file := range files {
		base := path.Base(file)
		version, name, up, err := parseRevisionName(base)
		if err != nil {
			return nil, err
		}

		raw, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", file, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", base)
		}

		rev, ok := byVersion[version]
		if !ok {
			rev = &revision{Version: version, Name: name}
			byVersion[version] = rev
		} else if rev.Name != name {
			return nil, fmt.Errorf("revision %d has conflicting names %q and %q", version, rev.Name, name)
		}

		side := &rev.Up
		if !up {
			side = &rev.Down
		}
		if *side != "" {
			return nil, fmt.Errorf("duplicate migration file for revision %d: %s", version, base)
		}
		*side = body
	}

	revisions := make([]revision, 0, len(byVersion))
	for _, rev := range byVersion {
		if rev.Up == "" || rev.Down == "" {
			return nil, fmt.Errorf("revision %d_%s must have both up and down files", rev.Version, rev.Name)
		}
		revisions = append(revisions, *rev)
	}
	sort.Slice(revisions, func(i, j int) bool { return revisions[i].Version < revisions[j].Version })
	return revisions, nil
}

func parseRevisionName(base string) (version int64, name string, up bool, err error) {
	trimmed, ok := strings.CutSuffix(base, ".sql")
	if !ok {
		return 0, "", false, fmt.Errorf("invalid migration file name: %s", base)
	}

	switch {
	case strings.HasSuffix(trimmed, ".up"):
		up = true
		trimmed = strings.TrimSuffix(trimmed, ".up")
	case strings.HasSuffix(trimmed, ".down"):
		trimmed = strings.TrimSuffix(trimmed, ".down")
	default:
		return 0, "", false, fmt.Errorf("migration file %s must end with .up.sql or .down.sql", base)
	}

	versionRaw, name, ok := strings.Cut(trimmed, "_")
	if !ok || name == "" {
		return 0, "", false, fmt.Errorf("migration file %s must be named <version>_<name>", base)
	}
	version, err = strconv.ParseInt(versionRaw, 10, 64)
	if err != nil || version <= 0 {
		return 0, "", false, fmt.Errorf("invalid revision version in %s", base)
	}
	return version, name, up, nil
}
