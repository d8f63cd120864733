// Package storage persists scored predictions in BoltDB so counsellors
// can review a student's history and the dashboard can show recent
// activity. The scoring service is the only writer; everything else
// reads.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"edurisk/internal/explain"
	"edurisk/internal/features"
	"edurisk/internal/risk"
)

const (
	predictionsBucket = "predictions" // keyed studentID_timestamp
	timelineBucket    = "timeline"    // keyed timestamp_id, for recency scans
)

// Record is one scored prediction as stored and served to the review
// surfaces.
type Record struct {
	ID                 string                `json:"id"`
	StudentID          string                `json:"student_id"`
	Timestamp          time.Time             `json:"timestamp"`
	Features           features.Vector       `json:"features"`
	RiskScore          float64               `json:"risk_score"`
	RiskCategory       risk.Category         `json:"risk_category"`
	DropoutProbability float64               `json:"dropout_probability"`
	Confidence         float64               `json:"confidence"`
	TopFeatures        []explain.Attribution `json:"top_features,omitempty"`
	ModelName          string                `json:"model_name"`
	ModelVersion       string                `json:"model_version"`
}

// Store provides thread-safe prediction persistence on BoltDB.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the prediction database under dataPath.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "edurisk-data.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(predictionsBucket)); err != nil {
			return fmt.Errorf("create predictions bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(timelineBucket)); err != nil {
			return fmt.Errorf("create timeline bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put stores a prediction record in both buckets. A missing ID gets a
// fresh UUID and a zero timestamp gets the current time, so callers can
// hand in a bare record.
func (s *Store) Put(r Record) (Record, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	if r.StudentID == "" {
		return Record{}, fmt.Errorf("storage: record has no student id")
	}

	data, err := json.Marshal(r)
	if err != nil {
		return Record{}, fmt.Errorf("marshal record: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		key := fmt.Sprintf("%s_%d", r.StudentID, r.Timestamp.UnixNano())
		if err := tx.Bucket([]byte(predictionsBucket)).Put([]byte(key), data); err != nil {
			return err
		}
		tkey := fmt.Sprintf("%020d_%s", r.Timestamp.UnixNano(), r.ID)
		return tx.Bucket([]byte(timelineBucket)).Put([]byte(tkey), data)
	})
	if err != nil {
		return Record{}, err
	}
	return r, nil
}

// ByStudent retrieves every prediction for one student, oldest first.
func (s *Store) ByStudent(studentID string) ([]Record, error) {
	var records []Record

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(predictionsBucket)).Cursor()
		prefix := []byte(studentID + "_")

		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				continue // skip malformed records
			}
			records = append(records, r)
		}
		return nil
	})

	return records, err
}

// Recent returns the n most recent predictions across all students,
// newest first.
func (s *Store) Recent(n int) ([]Record, error) {
	if n <= 0 {
		return nil, nil
	}
	var records []Record

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(timelineBucket)).Cursor()
		for k, v := c.Last(); k != nil && len(records) < n; k, v = c.Prev() {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				continue
			}
			records = append(records, r)
		}
		return nil
	})

	return records, err
}
