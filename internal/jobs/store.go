package jobs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketJobs = []byte("jobs")
	bucketDue  = []byte("due")
)

// Job is one scheduled tick callback. Jobs survive restarts; delivery is
// at-least-once, the tick endpoint is idempotent against redelivery.
type Job struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id"`
	RunID      string    `json:"run_id"`
	DueAt      time.Time `json:"due_at"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists scheduled jobs in BoltDB with a due-time index.
type Store struct {
	db *bolt.DB
}

// NewStore opens (or creates) the job database at path
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open job database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketJobs, bucketDue} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ScheduleAfter schedules a tick callback after the given delay
func (s *Store) ScheduleAfter(campaignID, runID string, delay time.Duration) error {
	return s.ScheduleAt(campaignID, runID, time.Now().Add(delay))
}

// ScheduleAt schedules a tick callback at an absolute instant
func (s *Store) ScheduleAt(campaignID, runID string, at time.Time) error {
	job := &Job{
		ID:         uuid.New().String(),
		CampaignID: campaignID,
		RunID:      runID,
		DueAt:      at,
		CreatedAt:  time.Now(),
	}
	return s.put(job)
}

func (s *Store) put(job *Job) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}
		if err := tx.Bucket(bucketJobs).Put([]byte(job.ID), data); err != nil {
			return fmt.Errorf("failed to store job: %w", err)
		}
		if err := tx.Bucket(bucketDue).Put(makeIndexKey(job.DueAt, job.ID), []byte(job.ID)); err != nil {
			return fmt.Errorf("failed to index job: %w", err)
		}
		return nil
	})
}

// NextDue removes and returns the earliest job whose due time has passed,
// or nil when nothing is due yet.
func (s *Store) NextDue(now time.Time) (*Job, error) {
	var job *Job

	err := s.db.Update(func(tx *bolt.Tx) error {
		dueBucket := tx.Bucket(bucketDue)
		jobBucket := tx.Bucket(bucketJobs)

		c := dueBucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			ts := parseTimestampFromKey(k)
			if ts.After(now) {
				return nil // index is time-ordered, the rest is in the future
			}

			data := jobBucket.Get(v)
			if data == nil {
				// Job record gone, drop the stale index entry
				c.Delete()
				continue
			}

			var j Job
			if err := json.Unmarshal(data, &j); err != nil {
				return fmt.Errorf("failed to unmarshal job: %w", err)
			}

			if err := c.Delete(); err != nil {
				return err
			}
			if err := jobBucket.Delete(v); err != nil {
				return err
			}

			job = &j
			return nil
		}
		return nil
	})

	return job, err
}

// Retry re-schedules a failed job attempt at a later instant
func (s *Store) Retry(job *Job, at time.Time, lastError string) error {
	job.Attempts++
	job.LastError = lastError
	job.DueAt = at
	return s.put(job)
}

// Len returns the number of stored jobs
func (s *Store) Len() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketJobs).Stats().KeyN
		return nil
	})
	return n, err
}

// makeIndexKey builds a lexicographically time-ordered index key. The
// timestamp is zero-padded UnixNano so that keys of unequal precision
// still sort strictly by due time.
func makeIndexKey(t time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%020d:%s", t.UTC().UnixNano(), id))
}

// parseTimestampFromKey extracts the timestamp from an index key
func parseTimestampFromKey(key []byte) time.Time {
	s := string(key)
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			ns, err := strconv.ParseInt(s[:i], 10, 64)
			if err != nil {
				return time.Time{}
			}
			return time.Unix(0, ns).UTC()
		}
	}
	return time.Time{}
}
