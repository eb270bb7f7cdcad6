package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/zombor/receipt-capture/internal/scanning"
)

const sessionBucket = "capture_sessions"

// DefaultSessionTTL is how long an abandoned capture survives
const DefaultSessionTTL = 24 * time.Hour

// ErrSessionNotFound is returned for unknown or expired sessions
var ErrSessionNotFound = errors.New("capture session not found")

// Session holds a staged payload and the extraction result for it, if any
type Session struct {
	ID        string           `json:"id"`
	Payload   *Payload         `json:"payload,omitempty"`
	Result    *scanning.Result `json:"result,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// Store keeps capture sessions in a BoltDB file
type Store struct {
	db     *bbolt.DB
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// OpenStore opens the session file, creating it if needed, and drops expired sessions
func OpenStore(path string, ttl time.Duration, logger *zap.Logger) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(sessionBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	s := &Store{db: db, ttl: ttl, now: time.Now, logger: logger}

	n, err := s.Prune(context.Background())
	if err != nil {
		db.Close()
		return nil, err
	}
	if n > 0 {
		logger.Info("pruned expired capture sessions", zap.Int("count", n))
	}
	return s, nil
}

// Create stages a payload in a new session
func (s *Store) Create(_ context.Context, p Payload) (*Session, error) {
	sess := &Session{
		ID:        uuid.NewString(),
		Payload:   &p,
		CreatedAt: s.now().UTC(),
	}
	if err := s.put(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns a live session
func (s *Store) Get(_ context.Context, id string) (*Session, error) {
	var sess *Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(sessionBucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return json.Unmarshal(data, &sess)
	})
	if err != nil {
		return nil, err
	}

	if s.expired(sess) {
		if err := s.remove(id); err != nil {
			s.logger.Warn("failed to drop expired session", zap.String("id", id), zap.Error(err))
		}
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// Update applies fn to a live session and stores the result
func (s *Store) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	sess.ID = id
	if err := s.put(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// SaveResult attaches an extraction result to a session
func (s *Store) SaveResult(ctx context.Context, id string, res *scanning.Result) error {
	_, err := s.Update(ctx, id, func(sess *Session) error {
		sess.Result = res
		return nil
	})
	return err
}

// Delete clears a session
func (s *Store) Delete(_ context.Context, id string) error {
	var found bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionBucket))
		found = bucket.Get([]byte(id)) != nil
		return bucket.Delete([]byte(id))
	})
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// Prune removes every expired session and reports how many were dropped
func (s *Store) Prune(_ context.Context) (int, error) {
	var removed int
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionBucket))
		var stale [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			var sess Session
			if err := json.Unmarshal(v, &sess); err != nil || s.expired(&sess) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("pruning sessions: %w", err)
	}
	return removed, nil
}

// Close closes the session file
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) expired(sess *Session) bool {
	return s.now().Sub(sess.CreatedAt) > s.ttl
}

func (s *Store) put(sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(sessionBucket)).Put([]byte(sess.ID), data)
	})
}

func (s *Store) remove(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(sessionBucket)).Delete([]byte(id))
	})
}
