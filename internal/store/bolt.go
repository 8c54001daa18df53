package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketEntities    = []byte("entities")
	bucketIdentifiers = []byte("identifiers")
	bucketAliases     = []byte("aliases")
	bucketMerges      = []byte("merges")
	bucketRedirects   = []byte("redirects")
	bucketMeta        = []byte("meta")
)

// BoltStore is an embedded, file-backed Store implementation for
// single-process deployments that want durability without running a
// separate Postgres instance. Every mutating call is still serialized by
// writerMu on top of bbolt's own single-writer transaction model, for the
// same reason PostgresStore wraps pgx in one: the single-writer contract
// spans lookup-decide-mutate, not just the final write.
type BoltStore struct {
	db       *bolt.DB
	writerMu sync.Mutex
}

// NewBoltStore opens (creating if necessary) the bbolt file at path and
// ensures all buckets exist.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketEntities, bucketIdentifiers, bucketAliases, bucketMerges, bucketRedirects, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing bolt buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Name() string { return "bbolt" }
func (s *BoltStore) Close() error { return s.db.Close() }

func aliasBoltKey(identifierType, normalizedValue string) []byte {
	return []byte(identifierType + "\x00" + normalizedValue)
}

func (s *BoltStore) CreateEntity(_ context.Context, entityType string) (*Entity, error) {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	e := &Entity{
		EntityID:  "ent_" + uuid.NewString(),
		Type:      entityType,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Status:    StatusActive,
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		raw, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketEntities).Put([]byte(e.EntityID), raw)
	})
	if err != nil {
		return nil, fmt.Errorf("create entity: %w", err)
	}
	return e, nil
}

func (s *BoltStore) GetEntity(_ context.Context, id string) (*Entity, error) {
	var e *Entity
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketEntities).Get([]byte(id))
		if raw == nil {
			return nil
		}
		e = &Entity{}
		return json.Unmarshal(raw, e)
	})
	if err != nil {
		return nil, fmt.Errorf("get entity %s: %w", id, err)
	}
	return e, nil
}

func (s *BoltStore) EnsureEntity(ctx context.Context, id string) error {
	e, err := s.GetEntity(ctx, id)
	if err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, id)
	}
	return nil
}

func (s *BoltStore) Canonicalize(_ context.Context, id string) (string, error) {
	var result string
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		result, err = canonicalizeBolt(tx, id)
		return err
	})
	return result, err
}

func canonicalizeBolt(tx *bolt.Tx, id string) (string, error) {
	current := id
	visited := make(map[string]bool)
	bucket := tx.Bucket(bucketRedirects)
	for {
		if visited[current] {
			return "", fmt.Errorf("%w: starting at %s", ErrCycleInRedirects, id)
		}
		visited[current] = true

		raw := bucket.Get([]byte(current))
		if raw == nil {
			return current, nil
		}
		var r Redirect
		if err := json.Unmarshal(raw, &r); err != nil {
			return "", err
		}
		current = r.ToEntityID
	}
}

func (s *BoltStore) FindAlias(_ context.Context, identifierType, normalizedValue string) (*Alias, error) {
	var a *Alias
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketAliases).Get(aliasBoltKey(identifierType, normalizedValue))
		if raw == nil {
			return nil
		}
		a = &Alias{}
		return json.Unmarshal(raw, a)
	})
	if err != nil {
		return nil, fmt.Errorf("find alias: %w", err)
	}
	return a, nil
}

func (s *BoltStore) UpsertIdentifier(_ context.Context, identifierType, value, normalizedValue string, confidence float64, provenance string) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketIdentifiers)
		key := aliasBoltKey(identifierType, normalizedValue)
		now := time.Now().UTC().Truncate(time.Second)

		raw := bucket.Get(key)
		ident := &Identifier{}
		if raw != nil {
			if err := json.Unmarshal(raw, ident); err != nil {
				return err
			}
			ident.Value = value
			if confidence > ident.Confidence {
				ident.Confidence = confidence
			}
			ident.LastSeenAt = now
			if ident.Provenance == "" {
				ident.Provenance = provenance
			}
		} else {
			ident = &Identifier{
				IdentifierType:  identifierType,
				Value:           value,
				NormalizedValue: normalizedValue,
				Confidence:      confidence,
				FirstSeenAt:     now,
				LastSeenAt:      now,
				Provenance:      provenance,
			}
		}
		out, err := json.Marshal(ident)
		if err != nil {
			return err
		}
		return bucket.Put(key, out)
	})
}

func (s *BoltStore) AddAlias(_ context.Context, identifierType, normalizedValue, targetEntityID string, confidence float64, causedBy, provenance string) (bool, string, error) {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	var inserted bool
	var conflict string

	err := s.db.Update(func(tx *bolt.Tx) error {
		canonicalTarget, err := canonicalizeBolt(tx, targetEntityID)
		if err != nil {
			return err
		}

		bucket := tx.Bucket(bucketAliases)
		key := aliasBoltKey(identifierType, normalizedValue)
		raw := bucket.Get(key)

		if raw != nil {
			existing := &Alias{}
			if err := json.Unmarshal(raw, existing); err != nil {
				return err
			}
			existingCanonical, err := canonicalizeBolt(tx, existing.EntityID)
			if err != nil {
				return err
			}
			if existingCanonical == canonicalTarget {
				if confidence > existing.Confidence {
					existing.Confidence = confidence
				}
				if existing.Provenance == "" {
					existing.Provenance = provenance
				}
				out, err := json.Marshal(existing)
				if err != nil {
					return err
				}
				return bucket.Put(key, out)
			}
			conflict = existingCanonical
			return nil
		}

		a := &Alias{
			IdentifierType:  identifierType,
			NormalizedValue: normalizedValue,
			EntityID:        canonicalTarget,
			Confidence:      confidence,
			CreatedAt:       time.Now().UTC().Truncate(time.Second),
			CausedBy:        causedBy,
			Provenance:      provenance,
		}
		out, err := json.Marshal(a)
		if err != nil {
			return err
		}
		if err := bucket.Put(key, out); err != nil {
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

func (s *BoltStore) MergeEntities(_ context.Context, from, to, reason, causedBy string) (int64, error) {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	var mergeID int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		fromCanonical, err := canonicalizeBolt(tx, from)
		if err != nil {
			return err
		}
		toCanonical, err := canonicalizeBolt(tx, to)
		if err != nil {
			return err
		}
		if fromCanonical == toCanonical {
			return fmt.Errorf("%w: %s and %s", ErrAlreadyMerged, from, to)
		}

		now := time.Now().UTC().Truncate(time.Second)
		redirect := Redirect{FromEntityID: fromCanonical, ToEntityID: toCanonical, Timestamp: now, Reason: reason, CausedBy: causedBy}
		raw, err := json.Marshal(redirect)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketRedirects).Put([]byte(fromCanonical), raw); err != nil {
			return err
		}

		if err := setEntityStatusBolt(tx, fromCanonical, StatusMerged); err != nil {
			return err
		}
		if err := setEntityStatusBolt(tx, toCanonical, StatusActive); err != nil {
			return err
		}

		metaBucket := tx.Bucket(bucketMeta)
		idRaw := metaBucket.Get([]byte("next_merge_id"))
		nextID := int64(1)
		if idRaw != nil {
			nextID = int64(bolt64(idRaw))
		}
		mergeID = nextID

		record := MergeRecord{MergeID: mergeID, FromEntityID: fromCanonical, ToEntityID: toCanonical, Reason: reason, Timestamp: now, CausedBy: causedBy}
		recRaw, err := json.Marshal(record)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketMerges).Put(int64Key(mergeID), recRaw); err != nil {
			return err
		}
		return metaBucket.Put([]byte("next_merge_id"), int64Bytes(nextID+1))
	})
	if err != nil {
		return 0, err
	}
	return mergeID, nil
}

func setEntityStatusBolt(tx *bolt.Tx, id string, status EntityStatus) error {
	bucket := tx.Bucket(bucketEntities)
	raw := bucket.Get([]byte(id))
	if raw == nil {
		return nil
	}
	var e Entity
	if err := json.Unmarshal(raw, &e); err != nil {
		return err
	}
	e.Status = status
	out, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return bucket.Put([]byte(id), out)
}

func (s *BoltStore) GetRedirectTarget(_ context.Context, id string) (string, error) {
	var target string
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketRedirects).Get([]byte(id))
		if raw == nil {
			return nil
		}
		var r Redirect
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		target = r.ToEntityID
		return nil
	})
	return target, err
}

func (s *BoltStore) RemoveRedirect(_ context.Context, id string) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRedirects).Delete([]byte(id))
	})
}

func (s *BoltStore) SetEntityStatus(_ context.Context, id string, status EntityStatus) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		return setEntityStatusBolt(tx, id, status)
	})
}

func (s *BoltStore) ListAliasesForEntity(ctx context.Context, id string) ([]Alias, error) {
	var result []Alias
	err := s.db.View(func(tx *bolt.Tx) error {
		target, err := canonicalizeBolt(tx, id)
		if err != nil {
			return err
		}
		c := tx.Bucket(bucketAliases).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var a Alias
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			canonical, err := canonicalizeBolt(tx, a.EntityID)
			if err != nil {
				return err
			}
			if canonical == target {
				result = append(result, a)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortAliases(result)
	return result, nil
}

func (s *BoltStore) ListIdentifierRecordsForEntity(ctx context.Context, id string) ([]Identifier, error) {
	var result []Identifier
	err := s.db.View(func(tx *bolt.Tx) error {
		target, err := canonicalizeBolt(tx, id)
		if err != nil {
			return err
		}
		aliasBucket := tx.Bucket(bucketAliases)
		identBucket := tx.Bucket(bucketIdentifiers)
		c := aliasBucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var a Alias
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			canonical, err := canonicalizeBolt(tx, a.EntityID)
			if err != nil {
				return err
			}
			if canonical != target {
				continue
			}
			identRaw := identBucket.Get(k)
			if identRaw == nil {
				continue
			}
			var ident Identifier
			if err := json.Unmarshal(identRaw, &ident); err != nil {
				return err
			}
			result = append(result, ident)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortIdentifiers(result)
	return result, nil
}

func (s *BoltStore) ListMergeHistory(_ context.Context) ([]MergeRecord, error) {
	var result []MergeRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketMerges).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var m MergeRecord
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			result = append(result, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(result, func(i, j int) bool { return result[i].MergeID < result[j].MergeID })
	return result, nil
}

func (s *BoltStore) ListAllEntities(_ context.Context) ([]Entity, error) {
	var result []Entity
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEntities).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var e Entity
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			result = append(result, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EntityID < result[j].EntityID })
	return result, nil
}

func (s *BoltStore) ListAllIdentifiers(_ context.Context) ([]Identifier, error) {
	var result []Identifier
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketIdentifiers).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var i Identifier
			if err := json.Unmarshal(v, &i); err != nil {
				return err
			}
			result = append(result, i)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortIdentifiers(result)
	return result, nil
}

func (s *BoltStore) ListAllAliases(_ context.Context) ([]Alias, error) {
	var result []Alias
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAliases).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var a Alias
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			result = append(result, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortAliases(result)
	return result, nil
}

func (s *BoltStore) ListAllRedirects(_ context.Context) ([]Redirect, error) {
	var result []Redirect
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRedirects).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var r Redirect
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			result = append(result, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(result, func(i, j int) bool { return result[i].FromEntityID < result[j].FromEntityID })
	return result, nil
}

func sortAliases(a []Alias) {
	sort.Slice(a, func(i, j int) bool {
		if a[i].IdentifierType != a[j].IdentifierType {
			return a[i].IdentifierType < a[j].IdentifierType
		}
		return a[i].NormalizedValue < a[j].NormalizedValue
	})
}

func sortIdentifiers(a []Identifier) {
	sort.Slice(a, func(i, j int) bool {
		if a[i].IdentifierType != a[j].IdentifierType {
			return a[i].IdentifierType < a[j].IdentifierType
		}
		return a[i].NormalizedValue < a[j].NormalizedValue
	})
}

func int64Key(v int64) []byte { return int64Bytes(v) }

func int64Bytes(v int64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v & 0xff)
		v >>= 8
	}
	return b
}

func bolt64(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = (v << 8) | int64(c)
	}
	return v
}
