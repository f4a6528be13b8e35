package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/faeln1/go-mockup-api/internal/domain/design"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

type sqlDesignRepo struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLDesignRepo returns a repository over db, creating the schema for the
// given dialect when missing.
func NewSQLDesignRepo(db *sql.DB, dialect Dialect) (DesignRepository, error) {
	repo := &sqlDesignRepo{db: db, dialect: dialect}
	if err := repo.ensureSchema(); err != nil {
		return nil, fmt.Errorf("ensure design schema: %w", err)
	}
	return repo, nil
}

func (r *sqlDesignRepo) ensureSchema() error {
	tsType, jsonType := "DATETIME", "TEXT"
	if r.dialect == DialectPostgres {
		tsType, jsonType = "TIMESTAMPTZ", "JSONB"
	}
	statements := []string{
		`CREATE TABLE IF NOT EXISTS projects (
            id TEXT PRIMARY KEY,
            owner_id TEXT NOT NULL,
            name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            created_at ` + tsType + ` NOT NULL,
            updated_at ` + tsType + ` NOT NULL,
            UNIQUE (owner_id, name)
        )`,
		`CREATE TABLE IF NOT EXISTS designs (
            id TEXT PRIMARY KEY,
            project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
            name TEXT NOT NULL,
            room_id TEXT NOT NULL,
            current_version INTEGER NOT NULL DEFAULT 0,
            created_at ` + tsType + ` NOT NULL,
            updated_at ` + tsType + ` NOT NULL,
            UNIQUE (project_id, name)
        )`,
		`CREATE TABLE IF NOT EXISTS design_versions (
            id TEXT PRIMARY KEY,
            design_id TEXT NOT NULL REFERENCES designs(id) ON DELETE CASCADE,
            number INTEGER NOT NULL,
            elements ` + jsonType + ` NOT NULL,
            prompt TEXT NOT NULL DEFAULT '',
            provider TEXT NOT NULL DEFAULT '',
            image_url TEXT NOT NULL DEFAULT '',
            author_id TEXT NOT NULL DEFAULT '',
            created_at ` + tsType + ` NOT NULL,
            UNIQUE (design_id, number)
        )`,
		`CREATE INDEX IF NOT EXISTS idx_projects_owner ON projects (owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_designs_project ON designs (project_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_designs_room ON designs (room_id)`,
	}
	for _, stmt := range statements {
		if _, err := r.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind turns ? placeholders into $n for postgres.
func (r *sqlDesignRepo) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (r *sqlDesignRepo) CreateProject(ctx context.Context, p *design.Project) error {
	_, err := r.db.ExecContext(ctx, r.rebind(`
        INSERT INTO projects (id, owner_id, name, description, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)`),
		string(p.ID), p.OwnerID, p.Name, p.Description, p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	return r.mapError(err)
}

func (r *sqlDesignRepo) ListProjects(ctx context.Context, ownerID string) ([]*design.Project, error) {
	query := `SELECT id, owner_id, name, description, created_at, updated_at FROM projects`
	var args []any
	if ownerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY created_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, r.mapError(err)
	}
	defer rows.Close()

	out := make([]*design.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *sqlDesignRepo) GetProject(ctx context.Context, id design.ID) (*design.Project, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(`
        SELECT id, owner_id, name, description, created_at, updated_at
        FROM projects WHERE id = ?`), string(id))
	p, err := scanProject(row)
	if err != nil {
		return nil, r.mapError(err)
	}
	return p, nil
}

func (r *sqlDesignRepo) DeleteProject(ctx context.Context, id design.ID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, r.rebind(`
        DELETE FROM design_versions WHERE design_id IN (SELECT id FROM designs WHERE project_id = ?)`), string(id)); err != nil {
		return r.mapError(err)
	}
	if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM designs WHERE project_id = ?`), string(id)); err != nil {
		return r.mapError(err)
	}
	res, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM projects WHERE id = ?`), string(id))
	if err != nil {
		return r.mapError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (r *sqlDesignRepo) CreateDesign(ctx context.Context, d *design.Design) error {
	if _, err := r.GetProject(ctx, d.ProjectID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, r.rebind(`
        INSERT INTO designs (id, project_id, name, room_id, current_version, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`),
		string(d.ID), string(d.ProjectID), d.Name, d.RoomID, d.CurrentVersion, d.CreatedAt.UTC(), d.UpdatedAt.UTC())
	return r.mapError(err)
}

func (r *sqlDesignRepo) ListDesigns(ctx context.Context, projectID design.ID) ([]*design.Design, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`
        SELECT id, project_id, name, room_id, current_version, created_at, updated_at
        FROM designs WHERE project_id = ?
        ORDER BY created_at ASC, id ASC`), string(projectID))
	if err != nil {
		return nil, r.mapError(err)
	}
	defer rows.Close()

	out := make([]*design.Design, 0)
	for rows.Next() {
		d, err := scanDesign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *sqlDesignRepo) GetDesign(ctx context.Context, id design.ID) (*design.Design, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(`
        SELECT id, project_id, name, room_id, current_version, created_at, updated_at
        FROM designs WHERE id = ?`), string(id))
	d, err := scanDesign(row)
	if err != nil {
		return nil, r.mapError(err)
	}
	return d, nil
}

func (r *sqlDesignRepo) GetDesignByRoom(ctx context.Context, roomID string) (*design.Design, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(`
        SELECT id, project_id, name, room_id, current_version, created_at, updated_at
        FROM designs WHERE room_id = ?`), roomID)
	d, err := scanDesign(row)
	if err != nil {
		return nil, r.mapError(err)
	}
	return d, nil
}

func (r *sqlDesignRepo) AppendVersion(ctx context.Context, v *design.Version) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	lock := ""
	if r.dialect == DialectPostgres {
		lock = " FOR UPDATE"
	}
	var current int
	err = tx.QueryRowContext(ctx, r.rebind(`SELECT current_version FROM designs WHERE id = ?`+lock), string(v.DesignID)).Scan(&current)
	if err != nil {
		return r.mapError(err)
	}

	number := current + 1
	if _, err := tx.ExecContext(ctx, r.rebind(`
        INSERT INTO design_versions (id, design_id, number, elements, prompt, provider, image_url, author_id, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		string(v.ID), string(v.DesignID), number, string(v.Elements), v.Prompt, v.Provider, v.ImageURL, v.AuthorID, v.CreatedAt.UTC()); err != nil {
		return r.mapError(err)
	}
	if _, err := tx.ExecContext(ctx, r.rebind(`
        UPDATE designs SET current_version = ?, updated_at = ? WHERE id = ?`),
		number, v.CreatedAt.UTC(), string(v.DesignID)); err != nil {
		return r.mapError(err)
	}
	if err := tx.Commit(); err != nil {
		return r.mapError(err)
	}
	v.Number = number
	return nil
}

func (r *sqlDesignRepo) ListVersions(ctx context.Context, designID design.ID) ([]*design.Version, error) {
	if _, err := r.GetDesign(ctx, designID); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, r.rebind(`
        SELECT id, design_id, number, elements, prompt, provider, image_url, author_id, created_at
        FROM design_versions WHERE design_id = ?
        ORDER BY number ASC`), string(designID))
	if err != nil {
		return nil, r.mapError(err)
	}
	defer rows.Close()

	out := make([]*design.Version, 0)
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *sqlDesignRepo) GetVersion(ctx context.Context, designID design.ID, number int) (*design.Version, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(`
        SELECT id, design_id, number, elements, prompt, provider, image_url, author_id, created_at
        FROM design_versions WHERE design_id = ? AND number = ?`), string(designID), number)
	v, err := scanVersion(row)
	if err != nil {
		return nil, r.mapError(err)
	}
	return v, nil
}

func (r *sqlDesignRepo) mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrAlreadyExists
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT {
			return ErrAlreadyExists
		}
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(s rowScanner) (*design.Project, error) {
	var (
		p                design.Project
		id               string
		created, updated dbTime
	)
	if err := s.Scan(&id, &p.OwnerID, &p.Name, &p.Description, &created, &updated); err != nil {
		return nil, err
	}
	p.ID = design.ID(id)
	p.CreatedAt, p.UpdatedAt = created.Time, updated.Time
	return &p, nil
}

func scanDesign(s rowScanner) (*design.Design, error) {
	var (
		d                design.Design
		id, projectID    string
		created, updated dbTime
	)
	if err := s.Scan(&id, &projectID, &d.Name, &d.RoomID, &d.CurrentVersion, &created, &updated); err != nil {
		return nil, err
	}
	d.ID, d.ProjectID = design.ID(id), design.ID(projectID)
	d.CreatedAt, d.UpdatedAt = created.Time, updated.Time
	return &d, nil
}

func scanVersion(s rowScanner) (*design.Version, error) {
	var (
		v            design.Version
		id, designID string
		elements     []byte
		created      dbTime
	)
	if err := s.Scan(&id, &designID, &v.Number, &elements, &v.Prompt, &v.Provider, &v.ImageURL, &v.AuthorID, &created); err != nil {
		return nil, err
	}
	v.ID, v.DesignID = design.ID(id), design.ID(designID)
	v.Elements = elements
	v.CreatedAt = created.Time
	return &v, nil
}

var dbTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// dbTime scans timestamps from either driver: lib/pq yields time.Time, the
// sqlite driver may hand back text.
type dbTime struct {
	time.Time
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.UTC()
		return nil
	case int64:
		t.Time = time.Unix(v, 0).UTC()
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	}
	return fmt.Errorf("unsupported timestamp type %T", src)
}

func (t *dbTime) parse(s string) error {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, " m="); i >= 0 {
		s = s[:i]
	}
	for _, layout := range dbTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("parse timestamp %q", s)
}
