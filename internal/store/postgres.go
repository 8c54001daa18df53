package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX abstracts pgxpool.Pool and pgx.Tx so the query helpers below work
// identically inside and outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// valueCodec optionally encrypts/decrypts raw identifier values at rest.
// A nil codec is a no-op, used when no encryption key is configured.
type valueCodec interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(token string) (string, error)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS resolver_entities (
	entity_id TEXT PRIMARY KEY,
	entity_type TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS resolver_identifiers (
	identifier_type TEXT NOT NULL,
	value TEXT NOT NULL,
	normalized_value TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	first_seen_at TIMESTAMPTZ NOT NULL,
	last_seen_at TIMESTAMPTZ NOT NULL,
	provenance TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (identifier_type, normalized_value)
);

CREATE TABLE IF NOT EXISTS resolver_aliases (
	identifier_type TEXT NOT NULL,
	normalized_value TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	caused_by TEXT NOT NULL,
	provenance TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (identifier_type, normalized_value)
);

CREATE TABLE IF NOT EXISTS resolver_merge_records (
	merge_id BIGSERIAL PRIMARY KEY,
	from_entity_id TEXT NOT NULL,
	to_entity_id TEXT NOT NULL,
	reason TEXT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	caused_by TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS resolver_entity_redirects (
	from_entity_id TEXT PRIMARY KEY,
	to_entity_id TEXT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	reason TEXT NOT NULL,
	caused_by TEXT NOT NULL
);
`

// PostgresStore is the production Store implementation, backed by a pgx
// connection pool. Every mutating method runs in one transaction so the
// lookup-decide-mutate sequence commits or rolls back as a unit;
// writerMu additionally serializes the whole call, since Postgres row
// locks alone would let two concurrent resolves both decide "miss"
// before either commits.
type PostgresStore struct {
	pool     *pgxpool.Pool
	writerMu sync.Mutex
	codec    valueCodec
}

// NewPostgresStore connects to databaseURL and ensures the schema exists.
// codec may be nil to store identifier values in plaintext.
func NewPostgresStore(ctx context.Context, databaseURL string, codec valueCodec) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &PostgresStore{pool: pool, codec: codec}, nil
}

func (s *PostgresStore) Name() string { return "postgres" }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// HealthCheck verifies the pool can reach Postgres.
func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) encryptValue(raw string) (string, error) {
	if s.codec == nil {
		return raw, nil
	}
	return s.codec.Encrypt(raw)
}

func (s *PostgresStore) decryptValue(stored string) (string, error) {
	if s.codec == nil {
		return stored, nil
	}
	plain, err := s.codec.Decrypt(stored)
	if err != nil {
		// Pre-encryption rows, or encryption disabled after being enabled:
		// fall back to the raw stored value rather than fail every read.
		return stored, nil
	}
	return plain, nil
}

func (s *PostgresStore) withWriteLock(ctx context.Context, fn func(tx pgx.Tx) error) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) CreateEntity(ctx context.Context, entityType string) (*Entity, error) {
	e := &Entity{
		EntityID: "ent_" + uuid.NewString(),
		Type:     entityType,
		Status:   StatusActive,
	}
	err := s.withWriteLock(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			INSERT INTO resolver_entities (entity_id, entity_type, created_at, status)
			VALUES ($1, $2, now(), $3)
			RETURNING created_at
		`, e.EntityID, e.Type, e.Status).Scan(&e.CreatedAt)
	})
	if err != nil {
		return nil, fmt.Errorf("create entity: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) GetEntity(ctx context.Context, id string) (*Entity, error) {
	e := &Entity{}
	err := s.pool.QueryRow(ctx, `
		SELECT entity_id, entity_type, created_at, status FROM resolver_entities WHERE entity_id = $1
	`, id).Scan(&e.EntityID, &e.Type, &e.CreatedAt, &e.Status)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entity %s: %w", id, err)
	}
	return e, nil
}

func (s *PostgresStore) EnsureEntity(ctx context.Context, id string) error {
	e, err := s.GetEntity(ctx, id)
	if err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, id)
	}
	return nil
}

func (s *PostgresStore) Canonicalize(ctx context.Context, id string) (string, error) {
	return canonicalizeTx(ctx, s.pool, id)
}

func canonicalizeTx(ctx context.Context, db DBTX, id string) (string, error) {
	current := id
	visited := make(map[string]bool)
	for {
		if visited[current] {
			return "", fmt.Errorf("%w: starting at %s", ErrCycleInRedirects, id)
		}
		visited[current] = true

		var to string
		err := db.QueryRow(ctx, `SELECT to_entity_id FROM resolver_entity_redirects WHERE from_entity_id = $1`, current).Scan(&to)
		if err == pgx.ErrNoRows {
			return current, nil
		}
		if err != nil {
			return "", fmt.Errorf("canonicalize: %w", err)
		}
		current = to
	}
}

func (s *PostgresStore) FindAlias(ctx context.Context, identifierType, normalizedValue string) (*Alias, error) {
	return findAliasTx(ctx, s.pool, identifierType, normalizedValue)
}

func findAliasTx(ctx context.Context, db DBTX, identifierType, normalizedValue string) (*Alias, error) {
	a := &Alias{}
	err := db.QueryRow(ctx, `
		SELECT identifier_type, normalized_value, entity_id, confidence, created_at, caused_by, provenance
		FROM resolver_aliases WHERE identifier_type = $1 AND normalized_value = $2
	`, identifierType, normalizedValue).Scan(
		&a.IdentifierType, &a.NormalizedValue, &a.EntityID, &a.Confidence, &a.CreatedAt, &a.CausedBy, &a.Provenance,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find alias: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) UpsertIdentifier(ctx context.Context, identifierType, value, normalizedValue string, confidence float64, provenance string) error {
	storedValue, err := s.encryptValue(value)
	if err != nil {
		return fmt.Errorf("encrypt identifier value: %w", err)
	}
	return s.withWriteLock(ctx, func(tx pgx.Tx) error {
		existing := &Identifier{}
		err := tx.QueryRow(ctx, `
			SELECT confidence, provenance FROM resolver_identifiers
			WHERE identifier_type = $1 AND normalized_value = $2
		`, identifierType, normalizedValue).Scan(&existing.Confidence, &existing.Provenance)

		switch err {
		case pgx.ErrNoRows:
			_, err = tx.Exec(ctx, `
				INSERT INTO resolver_identifiers
					(identifier_type, value, normalized_value, confidence, first_seen_at, last_seen_at, provenance)
				VALUES ($1, $2, $3, $4, now(), now(), $5)
			`, identifierType, storedValue, normalizedValue, confidence, provenance)
			return err
		case nil:
			newConfidence := existing.Confidence
			if confidence > newConfidence {
				newConfidence = confidence
			}
			newProvenance := existing.Provenance
			if newProvenance == "" {
				newProvenance = provenance
			}
			_, err = tx.Exec(ctx, `
				UPDATE resolver_identifiers
				SET value = $1, confidence = $2, last_seen_at = now(), provenance = $3
				WHERE identifier_type = $4 AND normalized_value = $5
			`, storedValue, newConfidence, newProvenance, identifierType, normalizedValue)
			return err
		default:
			return err
		}
	})
}

func (s *PostgresStore) AddAlias(ctx context.Context, identifierType, normalizedValue, targetEntityID string, confidence float64, causedBy, provenance string) (bool, string, error) {
	var inserted bool
	var conflict string

	err := s.withWriteLock(ctx, func(tx pgx.Tx) error {
		canonicalTarget, err := canonicalizeTx(ctx, tx, targetEntityID)
		if err != nil {
			return err
		}

		existing, err := findAliasTx(ctx, tx, identifierType, normalizedValue)
		if err != nil {
			return err
		}

		if existing != nil {
			existingCanonical, err := canonicalizeTx(ctx, tx, existing.EntityID)
			if err != nil {
				return err
			}
			if existingCanonical == canonicalTarget {
				newConfidence := existing.Confidence
				if confidence > newConfidence {
					newConfidence = confidence
				}
				newProvenance := existing.Provenance
				if newProvenance == "" {
					newProvenance = provenance
				}
				_, err = tx.Exec(ctx, `
					UPDATE resolver_aliases SET confidence = $1, provenance = $2
					WHERE identifier_type = $3 AND normalized_value = $4
				`, newConfidence, newProvenance, identifierType, normalizedValue)
				return err
			}
			conflict = existingCanonical
			return nil
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO resolver_aliases
				(identifier_type, normalized_value, entity_id, confidence, created_at, caused_by, provenance)
			VALUES ($1, $2, $3, $4, now(), $5, $6)
		`, identifierType, normalizedValue, canonicalTarget, confidence, causedBy, provenance)
		if err != nil {
			return err
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, "", fmt.Errorf("add alias: %w", err)
	}
	return inserted, conflict, nil
}

func (s *PostgresStore) MergeEntities(ctx context.Context, from, to, reason, causedBy string) (int64, error) {
	var mergeID int64
	err := s.withWriteLock(ctx, func(tx pgx.Tx) error {
		fromCanonical, err := canonicalizeTx(ctx, tx, from)
		if err != nil {
			return err
		}
		toCanonical, err := canonicalizeTx(ctx, tx, to)
		if err != nil {
			return err
		}
		if fromCanonical == toCanonical {
			return fmt.Errorf("%w: %s and %s", ErrAlreadyMerged, from, to)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO resolver_entity_redirects (from_entity_id, to_entity_id, timestamp, reason, caused_by)
			VALUES ($1, $2, now(), $3, $4)
			ON CONFLICT (from_entity_id) DO UPDATE SET to_entity_id = $2, timestamp = now(), reason = $3, caused_by = $4
		`, fromCanonical, toCanonical, reason, causedBy)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `UPDATE resolver_entities SET status = $1 WHERE entity_id = $2`, StatusMerged, fromCanonical); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE resolver_entities SET status = $1 WHERE entity_id = $2`, StatusActive, toCanonical); err != nil {
			return err
		}

		return tx.QueryRow(ctx, `
			INSERT INTO resolver_merge_records (from_entity_id, to_entity_id, reason, timestamp, caused_by)
			VALUES ($1, $2, $3, now(), $4)
			RETURNING merge_id
		`, fromCanonical, toCanonical, reason, causedBy).Scan(&mergeID)
	})
	if err != nil {
		return 0, err
	}
	return mergeID, nil
}

func (s *PostgresStore) GetRedirectTarget(ctx context.Context, id string) (string, error) {
	var to string
	err := s.pool.QueryRow(ctx, `SELECT to_entity_id FROM resolver_entity_redirects WHERE from_entity_id = $1`, id).Scan(&to)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get redirect target: %w", err)
	}
	return to, nil
}

func (s *PostgresStore) RemoveRedirect(ctx context.Context, id string) error {
	return s.withWriteLock(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM resolver_entity_redirects WHERE from_entity_id = $1`, id)
		return err
	})
}

func (s *PostgresStore) SetEntityStatus(ctx context.Context, id string, status EntityStatus) error {
	return s.withWriteLock(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `UPDATE resolver_entities SET status = $1 WHERE entity_id = $2`, status, id)
		return err
	})
}

func (s *PostgresStore) ListAliasesForEntity(ctx context.Context, id string) ([]Alias, error) {
	target, err := s.Canonicalize(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT identifier_type, normalized_value, entity_id, confidence, created_at, caused_by, provenance
		FROM resolver_aliases ORDER BY identifier_type, normalized_value
	`)
	if err != nil {
		return nil, fmt.Errorf("list aliases: %w", err)
	}
	defer rows.Close()

	var result []Alias
	for rows.Next() {
		var a Alias
		if err := rows.Scan(&a.IdentifierType, &a.NormalizedValue, &a.EntityID, &a.Confidence, &a.CreatedAt, &a.CausedBy, &a.Provenance); err != nil {
			return nil, fmt.Errorf("scan alias: %w", err)
		}
		canonical, err := s.Canonicalize(ctx, a.EntityID)
		if err != nil {
			return nil, err
		}
		if canonical == target {
			result = append(result, a)
		}
	}
	return result, rows.Err()
}

func (s *PostgresStore) ListIdentifierRecordsForEntity(ctx context.Context, id string) ([]Identifier, error) {
	target, err := s.Canonicalize(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT a.entity_id, i.identifier_type, i.value, i.normalized_value, i.confidence, i.first_seen_at, i.last_seen_at, i.provenance
		FROM resolver_aliases a
		JOIN resolver_identifiers i
			ON a.identifier_type = i.identifier_type AND a.normalized_value = i.normalized_value
		ORDER BY i.identifier_type, i.normalized_value
	`)
	if err != nil {
		return nil, fmt.Errorf("list identifier records: %w", err)
	}
	defer rows.Close()

	var result []Identifier
	for rows.Next() {
		var aliasEntityID string
		var ident Identifier
		if err := rows.Scan(&aliasEntityID, &ident.IdentifierType, &ident.Value, &ident.NormalizedValue, &ident.Confidence, &ident.FirstSeenAt, &ident.LastSeenAt, &ident.Provenance); err != nil {
			return nil, fmt.Errorf("scan identifier record: %w", err)
		}
		canonical, err := s.Canonicalize(ctx, aliasEntityID)
		if err != nil {
			return nil, err
		}
		if canonical != target {
			continue
		}
		if plain, err := s.decryptValue(ident.Value); err == nil {
			ident.Value = plain
		}
		result = append(result, ident)
	}
	return result, rows.Err()
}

func (s *PostgresStore) ListMergeHistory(ctx context.Context) ([]MergeRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT merge_id, from_entity_id, to_entity_id, reason, timestamp, caused_by
		FROM resolver_merge_records ORDER BY merge_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list merge history: %w", err)
	}
	defer rows.Close()

	var result []MergeRecord
	for rows.Next() {
		var m MergeRecord
		if err := rows.Scan(&m.MergeID, &m.FromEntityID, &m.ToEntityID, &m.Reason, &m.Timestamp, &m.CausedBy); err != nil {
			return nil, fmt.Errorf("scan merge record: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (s *PostgresStore) ListAllEntities(ctx context.Context) ([]Entity, error) {
	rows, err := s.pool.Query(ctx, `SELECT entity_id, entity_type, created_at, status FROM resolver_entities ORDER BY entity_id`)
	if err != nil {
		return nil, fmt.Errorf("list all entities: %w", err)
	}
	defer rows.Close()

	var result []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.EntityID, &e.Type, &e.CreatedAt, &e.Status); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *PostgresStore) ListAllIdentifiers(ctx context.Context) ([]Identifier, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT identifier_type, value, normalized_value, confidence, first_seen_at, last_seen_at, provenance
		FROM resolver_identifiers ORDER BY identifier_type, normalized_value
	`)
	if err != nil {
		return nil, fmt.Errorf("list all identifiers: %w", err)
	}
	defer rows.Close()

	var result []Identifier
	for rows.Next() {
		var i Identifier
		if err := rows.Scan(&i.IdentifierType, &i.Value, &i.NormalizedValue, &i.Confidence, &i.FirstSeenAt, &i.LastSeenAt, &i.Provenance); err != nil {
			return nil, fmt.Errorf("scan identifier: %w", err)
		}
		if plain, err := s.decryptValue(i.Value); err == nil {
			i.Value = plain
		}
		result = append(result, i)
	}
	return result, rows.Err()
}

func (s *PostgresStore) ListAllAliases(ctx context.Context) ([]Alias, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT identifier_type, normalized_value, entity_id, confidence, created_at, caused_by, provenance
		FROM resolver_aliases ORDER BY identifier_type, normalized_value
	`)
	if err != nil {
		return nil, fmt.Errorf("list all aliases: %w", err)
	}
	defer rows.Close()

	var result []Alias
	for rows.Next() {
		var a Alias
		if err := rows.Scan(&a.IdentifierType, &a.NormalizedValue, &a.EntityID, &a.Confidence, &a.CreatedAt, &a.CausedBy, &a.Provenance); err != nil {
			return nil, fmt.Errorf("scan alias: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *PostgresStore) ListAllRedirects(ctx context.Context) ([]Redirect, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT from_entity_id, to_entity_id, timestamp, reason, caused_by
		FROM resolver_entity_redirects ORDER BY from_entity_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list all redirects: %w", err)
	}
	defer rows.Close()

	var result []Redirect
	for rows.Next() {
		var r Redirect
		if err := rows.Scan(&r.FromEntityID, &r.ToEntityID, &r.Timestamp, &r.Reason, &r.CausedBy); err != nil {
			return nil, fmt.Errorf("scan redirect: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
