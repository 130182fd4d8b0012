// Package boltstore keeps interviews, rounds and conversation records in a
// single bbolt file. It serves single-node and development deployments.
package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/MikeSquared-Agency/interviewer/internal/interview"
)

var (
	bucketInterviews    = []byte("interviews")
	bucketRounds        = []byte("rounds")
	bucketConversations = []byte("conversations")
)

type Store struct {
	db *bolt.DB
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create bolt dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketInterviews, bucketRounds, bucketConversations} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type interviewRow struct {
	ID          int64  `json:"id"`
	UserID      string `json:"user_id"`
	Company     string `json:"company"`
	Position    string `json:"position"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

type roundRow struct {
	ID          int64     `json:"id"`
	InterviewID int64     `json:"interview_id"`
	RoundNumber int       `json:"round_number"`
	SessionID   string    `json:"session_id,omitempty"`
	Status      string    `json:"status"`
	Result      string    `json:"result,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type conversationRow struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session_id"`
	InterviewID int64     `json:"interview_id"`
	RoundID     int64     `json:"round_id"`
	History     string    `json:"conversation_text"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Store) LoadBySessionID(_ context.Context, sessionID string) (*interview.Record, error) {
	var row conversationRow
	if err := s.get(bucketConversations, []byte(sessionID), &row); err != nil {
		return nil, fmt.Errorf("conversation %s: %w", sessionID, err)
	}
	return &interview.Record{
		ID:          row.ID,
		SessionID:   row.SessionID,
		InterviewID: row.InterviewID,
		RoundID:     row.RoundID,
		History:     row.History,
		CreatedAt:   row.CreatedAt,
	}, nil
}

func (s *Store) Create(_ context.Context, rec *interview.Record) (int64, error) {
	var id int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketConversations)
		if b.Get([]byte(rec.SessionID)) != nil {
			return fmt.Errorf("conversation %s already exists", rec.SessionID)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		id = int64(seq)
		return put(b, []byte(rec.SessionID), conversationRow{
			ID:          id,
			SessionID:   rec.SessionID,
			InterviewID: rec.InterviewID,
			RoundID:     rec.RoundID,
			History:     rec.History,
			CreatedAt:   rec.CreatedAt,
		})
	})
	if err != nil {
		return 0, fmt.Errorf("insert conversation: %w", err)
	}
	return id, nil
}

func (s *Store) UpdateHistory(_ context.Context, sessionID, history string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketConversations)
		var row conversationRow
		if err := decode(b.Get([]byte(sessionID)), &row); err != nil {
			return err
		}
		row.History = history
		return put(b, []byte(sessionID), row)
	})
	if err != nil {
		return fmt.Errorf("update conversation %s: %w", sessionID, err)
	}
	return nil
}

func (s *Store) GetInterview(_ context.Context, id int64) (*interview.Interview, error) {
	var row interviewRow
	if err := s.get(bucketInterviews, itob(id), &row); err != nil {
		return nil, fmt.Errorf("interview %d: %w", id, err)
	}
	return &interview.Interview{
		ID:          row.ID,
		UserID:      row.UserID,
		Company:     row.Company,
		Position:    row.Position,
		Description: row.Description,
		Status:      interview.Status(row.Status),
	}, nil
}

func (s *Store) GetRound(_ context.Context, id int64) (*interview.Round, error) {
	var row roundRow
	if err := s.get(bucketRounds, itob(id), &row); err != nil {
		return nil, fmt.Errorf("round %d: %w", id, err)
	}
	return &interview.Round{
		ID:          row.ID,
		InterviewID: row.InterviewID,
		RoundNumber: row.RoundNumber,
		SessionID:   row.SessionID,
		Status:      interview.Status(row.Status),
		Result:      interview.Result(row.Result),
		Notes:       row.Notes,
		UpdatedAt:   row.UpdatedAt,
	}, nil
}

func (s *Store) UpdateRound(_ context.Context, r *interview.Round) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRounds)
		key := itob(r.ID)
		if b.Get(key) == nil {
			return interview.ErrNotFound
		}
		return put(b, key, toRoundRow(r))
	})
	if err != nil {
		return fmt.Errorf("update round %d: %w", r.ID, err)
	}
	return nil
}

// CreateInterview inserts iv under the next id of the interviews bucket.
func (s *Store) CreateInterview(_ context.Context, iv *interview.Interview) (int64, error) {
	var id int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInterviews)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		id = int64(seq)
		status := iv.Status
		if status == "" {
			status = interview.StatusPending
		}
		return put(b, itob(id), interviewRow{
			ID:          id,
			UserID:      iv.UserID,
			Company:     iv.Company,
			Position:    iv.Position,
			Description: iv.Description,
			Status:      string(status),
		})
	})
	if err != nil {
		return 0, fmt.Errorf("insert interview: %w", err)
	}
	return id, nil
}

func (s *Store) CreateRound(_ context.Context, r *interview.Round) (int64, error) {
	var id int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketInterviews).Get(itob(r.InterviewID)) == nil {
			return fmt.Errorf("interview %d: %w", r.InterviewID, interview.ErrNotFound)
		}
		b := tx.Bucket(bucketRounds)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		id = int64(seq)
		row := toRoundRow(r)
		row.ID = id
		if row.Status == "" {
			row.Status = string(interview.StatusPending)
		}
		if row.UpdatedAt.IsZero() {
			row.UpdatedAt = time.Now().UTC()
		}
		return put(b, itob(id), row)
	})
	if err != nil {
		return 0, fmt.Errorf("insert round: %w", err)
	}
	return id, nil
}

func toRoundRow(r *interview.Round) roundRow {
	return roundRow{
		ID:          r.ID,
		InterviewID: r.InterviewID,
		RoundNumber: r.RoundNumber,
		SessionID:   r.SessionID,
		Status:      string(r.Status),
		Result:      string(r.Result),
		Notes:       r.Notes,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (s *Store) get(bucket, key []byte, v any) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return decode(tx.Bucket(bucket).Get(key), v)
	})
}

// decode returns interview.ErrNotFound for a missing value.
func decode(data []byte, v any) error {
	if data == nil {
		return interview.ErrNotFound
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	return nil
}

func put(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode row: %w", err)
	}
	return b.Put(key, data)
}

// itob encodes ids big-endian so keys sort numerically.
func itob(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}
