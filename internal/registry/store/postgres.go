package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"meldid/internal/identity"
	"meldid/internal/registry"
	"meldid/pkg/platform/sentinel"
)

// Postgres is the durable registry store. INSERT ... ON CONFLICT DO NOTHING
// gives per-chip first-write-wins atomicity at the database level.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate creates the identities table when it does not exist yet. Kept here
// rather than in a migration tool because the schema is a single table.
func (s *Postgres) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS meld_identities (
			chip_id       TEXT PRIMARY KEY,
			public_key    BYTEA NOT NULL CHECK (octet_length(public_key) = 32),
			device_id     TEXT NOT NULL,
			did           TEXT NOT NULL,
			key_source    TEXT NOT NULL,
			registered_at TIMESTAMPTZ NOT NULL,
			last_seen     TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("migrate identities table: %w", err)
	}
	return nil
}

func (s *Postgres) Create(ctx context.Context, entry registry.Entry) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO meld_identities (chip_id, public_key, device_id, did, key_source, registered_at, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (chip_id) DO NOTHING`,
		entry.ChipID, []byte(entry.PublicKey), entry.DeviceID, entry.DID,
		string(entry.KeySource), entry.RegisteredAt, entry.LastSeen,
	)
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, chipID string) (registry.Entry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT chip_id, public_key, device_id, did, key_source, registered_at, last_seen
		FROM meld_identities WHERE chip_id = $1`, chipID)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return registry.Entry{}, sentinel.ErrNotFound
	}
	if err != nil {
		return registry.Entry{}, fmt.Errorf("select identity: %w", err)
	}
	return entry, nil
}

func (s *Postgres) Touch(ctx context.Context, chipID string, seenAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE meld_identities SET last_seen = GREATEST(last_seen, $2) WHERE chip_id = $1`,
		chipID, seenAt)
	if err != nil {
		return fmt.Errorf("update lastSeen: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) BatchGet(ctx context.Context, chipIDs []string) ([]registry.Entry, error) {
	if len(chipIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT chip_id, public_key, device_id, did, key_source, registered_at, last_seen
		FROM meld_identities WHERE chip_id = ANY($1)`, chipIDs)
	if err != nil {
		return nil, fmt.Errorf("batch select identities: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (s *Postgres) List(ctx context.Context) ([]registry.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chip_id, public_key, device_id, did, key_source, registered_at, last_seen
		FROM meld_identities`)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (s *Postgres) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanEntry(row pgx.Row) (registry.Entry, error) {
	var (
		entry     registry.Entry
		publicKey []byte
		keySource string
	)
	err := row.Scan(&entry.ChipID, &publicKey, &entry.DeviceID, &entry.DID,
		&keySource, &entry.RegisteredAt, &entry.LastSeen)
	if err != nil {
		return registry.Entry{}, err
	}
	entry.PublicKey = publicKey
	entry.KeySource = identity.KeySource(keySource)
	entry.RegisteredAt = entry.RegisteredAt.UTC()
	entry.LastSeen = entry.LastSeen.UTC()
	return entry, nil
}

func collectEntries(rows pgx.Rows) ([]registry.Entry, error) {
	var out []registry.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return out, nil
}
