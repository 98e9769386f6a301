package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"sparqlbench/internal/runner"
)

const (
	BucketRuns = "runs"
)

// ErrNotFound is returned by Get for unknown ids.
var ErrNotFound = errors.New("run not found")

// Record is one finished run as kept in the history.
type Record struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Endpoint  string         `json:"endpoint"`
	Outcome   runner.Outcome `json:"outcome"`
	Valid     bool           `json:"valid"`
	Seconds   int64          `json:"seconds"`
	WriteRate float64        `json:"write_ops_per_second"`
	ReadRate  float64        `json:"read_ops_per_second"`
	Result    runner.Result  `json:"result"`
}

// NewRecord summarises res under a fresh time-ordered id.
func NewRecord(res runner.Result) (Record, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Record{}, errors.Wrap(err, "generating run id")
	}
	return Record{
		ID:        id.String(),
		Timestamp: res.Started,
		Endpoint:  res.Config.QueryURL,
		Outcome:   res.Outcome,
		Valid:     res.Valid,
		Seconds:   res.Seconds,
		WriteRate: res.WriteRate(),
		ReadRate:  res.ReadRate(),
		Result:    res,
	}, nil
}

// Store keeps run records in a bbolt file.
type Store struct {
	db       *bbolt.DB
	filePath string
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating history directory")
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening history %s", path)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(BucketRuns))
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initialising history")
	}

	return &Store{
		db:       db,
		filePath: path,
	}, nil
}

func (s *Store) Path() string {
	return s.filePath
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) Save(rec Record) error {
	if rec.ID == "" {
		return errors.New("record has no id")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encoding record")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(BucketRuns)).Put([]byte(rec.ID), data)
	})
}

// List returns up to limit records, newest first. limit <= 0 means all.
func (s *Store) List(limit int) ([]Record, error) {
	var items []Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(BucketRuns)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(items) >= limit {
				break
			}
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return errors.Wrapf(err, "decoding record %s", k)
			}
			items = append(items, rec)
		}
		return nil
	})
	return items, err
}

func (s *Store) Get(id string) (Record, error) {
	var rec Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(BucketRuns)).Get([]byte(id))
		if v == nil {
			return errors.Wrap(ErrNotFound, id)
		}
		return json.Unmarshal(v, &rec)
	})
	return rec, err
}
