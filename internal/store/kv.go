package store

import (
	"database/sql"
	"encoding/base64"
	"fmt"
	"time"
)

// Entry is a stored value and the time it was last written.
type Entry struct {
	Value     string
	UpdatedAt time.Time
}

// KVStore is the durable key/value table behind the session.
type KVStore struct {
	db     *sql.DB
	sealer *Sealer
}

type Option func(*KVStore)

// WithSealer encrypts every value written from now on and requires every
// value read to be sealed.
func WithSealer(s *Sealer) Option {
	return func(kv *KVStore) {
		kv.sealer = s
	}
}

func NewKVStore(db *sql.DB, opts ...Option) *KVStore {
	kv := &KVStore{db: db}
	for _, opt := range opts {
		opt(kv)
	}
	return kv
}

// Get returns the entry for key, or nil if the key is not set.
func (s *KVStore) Get(key string) (*Entry, error) {
	var e Entry
	err := s.db.QueryRow(`SELECT value, updated_at FROM kv WHERE key = ?`, key).Scan(&e.Value, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}

	value, err := s.open(e.Value)
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	e.Value = value
	return &e, nil
}

// SetAll writes every pair in one transaction: either all keys change or
// none do.
func (s *KVStore) SetAll(values map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for key, value := range values {
		stored, err := s.seal(value)
		if err != nil {
			return fmt.Errorf("set %q: %w", key, err)
		}
		_, err = tx.Exec(
			`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, stored, now,
		)
		if err != nil {
			return fmt.Errorf("set %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Delete removes every key in one transaction. Missing keys are ignored.
func (s *KVStore) Delete(keys ...string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, key := range keys {
		if _, err := tx.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
			return fmt.Errorf("delete %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *KVStore) seal(value string) (string, error) {
	if s.sealer == nil {
		return value, nil
	}
	sealed, err := s.sealer.Seal([]byte(value))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *KVStore) open(stored string) (string, error) {
	if s.sealer == nil {
		return stored, nil
	}
	sealed, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnseal, err)
	}
	plaintext, err := s.sealer.Open(sealed)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
