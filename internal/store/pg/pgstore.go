// Package pg implements the directory, alert and incident persistence
// interfaces on PostgreSQL via database/sql and the pgx driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"eventguard.org/internal/alert"
	"eventguard.org/internal/directory"
	"eventguard.org/internal/ids"
	"eventguard.org/internal/incident"
	"eventguard.org/internal/roles"
)

type Store struct {
	db *sql.DB
}

var (
	_ directory.Store = (*Store)(nil)
	_ alert.Ledger    = (*Store)(nil)
	_ incident.Store  = (*IncidentStore)(nil)
)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle; tests use this with sqlmock.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

const userColumns = `id, username, email, password_hash, role, approved,
	assigned_location, coalesce(reset_token_hash,''), coalesce(reset_token_expires, 'epoch'::timestamptz),
	created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*directory.User, error) {
	var u directory.User
	var role string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.Approved,
		&u.AssignedLocation, &u.ResetTokenHash, &u.ResetTokenExpires,
		&u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, directory.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = roles.Role(role)
	return &u, nil
}

func (s *Store) Create(ctx context.Context, u *directory.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, username, email, password_hash, role, approved, assigned_location, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, u.ID, u.Username, u.Email, u.PasswordHash, u.Role.String(), u.Approved, u.AssignedLocation, u.CreatedAt, u.UpdatedAt)
	if err != nil && isUniqueViolation(err) {
		return directory.ErrAlreadyExists
	}
	return err
}

func (s *Store) Find(ctx context.Context, id string) (*directory.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id=$1`, id))
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*directory.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where email=$1`, strings.ToLower(strings.TrimSpace(email))))
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*directory.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where username=$1`, username))
}

func (s *Store) ListPending(ctx context.Context) ([]*directory.User, error) {
	rows, err := s.db.QueryContext(ctx, `select `+userColumns+` from users where approved=false order by created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []*directory.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		pending = append(pending, u)
	}
	return pending, rows.Err()
}

func (s *Store) Approve(ctx context.Context, id string, role roles.Role) (*directory.User, error) {
	var err error
	if role.Valid() {
		_, err = s.db.ExecContext(ctx, `update users set approved=true, role=$2, updated_at=now() where id=$1`, id, role.String())
	} else {
		_, err = s.db.ExecContext(ctx, `update users set approved=true, updated_at=now() where id=$1`, id)
	}
	if err != nil {
		return nil, err
	}
	return s.Find(ctx, id)
}

func (s *Store) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `update users set password_hash=$2, updated_at=now() where id=$1`, id, passwordHash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) SetResetToken(ctx context.Context, id, tokenHash string, expires time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update users set reset_token_hash=$2, reset_token_expires=$3, updated_at=now() where id=$1
	`, id, tokenHash, expires.UTC())
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) FindByResetToken(ctx context.Context, tokenHash string) (*directory.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where reset_token_hash=$1`, tokenHash))
}

func (s *Store) ClearResetToken(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		update users set reset_token_hash=null, reset_token_expires=null, updated_at=now() where id=$1
	`, id)
	return err
}

func (s *Store) Append(ctx context.Context, a *alert.Alert) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = ids.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into alerts(id, message, sender, sender_role, media_url, media_kind, target_role, priority, location_tag, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, a.ID, a.Message, a.Sender, a.SenderRole.String(), a.MediaURL, string(a.MediaKind),
		a.Target.String(), string(a.Priority), a.LocationTag, a.CreatedAt)
	return err
}

func (s *Store) Recent(ctx context.Context, limit int) ([]alert.Alert, error) {
	if limit <= 0 {
		limit = alert.DefaultRecentLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, message, sender, sender_role, media_url, media_kind, target_role, priority, location_tag, created_at
		from alerts order by created_at desc limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]alert.Alert, 0, limit)
	for rows.Next() {
		var a alert.Alert
		var senderRole, mediaKind, target, priority string
		if err := rows.Scan(&a.ID, &a.Message, &a.Sender, &senderRole, &a.MediaURL, &mediaKind,
			&target, &priority, &a.LocationTag, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.SenderRole = roles.Role(senderRole)
		a.MediaKind = alert.MediaKind(mediaKind)
		a.Target = roles.Target(target)
		a.Priority = alert.Priority(priority)
		out = append(out, a)
	}
	return out, rows.Err()
}

// IncidentStore is the incident view over the same handle. Split from
// Store because its method set would collide with the directory's.
type IncidentStore struct {
	db *sql.DB
}

// Incidents returns the incident persistence facade.
func (s *Store) Incidents() *IncidentStore { return &IncidentStore{db: s.db} }

func (s *IncidentStore) Create(ctx context.Context, inc *incident.Incident) error {
	if err := inc.Validate(); err != nil {
		return err
	}
	inc.ID = ids.New()
	inc.CreatedAt = time.Now().UTC()
	if inc.VisionLabels == nil {
		inc.VisionLabels = []string{}
	}
	_, err := s.db.ExecContext(ctx, `
		insert into incidents(id, type, location, image_url, vision_labels, created_at)
		values ($1,$2,$3,$4,$5,$6)
	`, inc.ID, inc.Type, inc.Location, inc.ImageURL, strings.Join(inc.VisionLabels, ","), inc.CreatedAt)
	return err
}

func (s *IncidentStore) Find(ctx context.Context, id string) (*incident.Incident, error) {
	return scanIncident(s.db.QueryRowContext(ctx, `
		select id, type, location, image_url, coalesce(vision_labels,''), created_at from incidents where id=$1
	`, id))
}

func (s *IncidentStore) List(ctx context.Context) ([]*incident.Incident, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, type, location, image_url, coalesce(vision_labels,''), created_at from incidents order by created_at desc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*incident.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

func (s *IncidentStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from incidents where id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return incident.ErrNotFound
	}
	return nil
}

func scanIncident(row interface{ Scan(...any) error }) (*incident.Incident, error) {
	var inc incident.Incident
	var labels string
	err := row.Scan(&inc.ID, &inc.Type, &inc.Location, &inc.ImageURL, &labels, &inc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, incident.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if labels == "" {
		inc.VisionLabels = []string{}
	} else {
		inc.VisionLabels = strings.Split(labels, ",")
	}
	return &inc, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return directory.ErrNotFound
	}
	return nil
}

// isUniqueViolation matches the Postgres 23505 error class without
// importing driver error types.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
