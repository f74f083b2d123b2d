package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job statuses.
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

// Job tracks one unit of asynchronous work and its outcome.
type Job struct {
	JobID     string          `json:"job_id"`
	Type      string          `json:"type"`
	Status    string          `json:"status"`
	Input     json.RawMessage `json:"input"`
	Output    json.RawMessage `json:"output,omitempty"`
	Error     *string         `json:"error,omitempty"`
	CreatedAt int64           `json:"created_at"`
	UpdatedAt int64           `json:"updated_at"`
}

// JobStore provides persistence for job records.
type JobStore struct {
	db *sql.DB
}

// NewJobStore creates a new JobStore.
func NewJobStore(db *DB) *JobStore {
	return &JobStore{db: db.DB}
}

// Create persists a queued job. If JobID is empty, a UUID is generated.
func (s *JobStore) Create(j *Job) error {
	if j.JobID == "" {
		j.JobID = uuid.New().String()
	}
	if j.Status == "" {
		j.Status = JobQueued
	}
	if len(j.Input) == 0 {
		j.Input = json.RawMessage("{}")
	}
	now := time.Now().UnixNano()
	if j.CreatedAt == 0 {
		j.CreatedAt = now
	}
	j.UpdatedAt = j.CreatedAt

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO jobs (job_id, type, status, input, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			j.JobID, j.Type, j.Status, string(j.Input), j.CreatedAt, j.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		return nil
	})
}

// Get returns a single job by ID.
func (s *JobStore) Get(jobID string) (*Job, error) {
	row := s.db.QueryRow(`
		SELECT job_id, type, status, input, output, error, created_at, updated_at
		FROM jobs
		WHERE job_id = ?`, jobID)

	var j Job
	var input string
	var output, errMsg sql.NullString
	err := row.Scan(&j.JobID, &j.Type, &j.Status, &input, &output, &errMsg, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	j.Input = json.RawMessage(input)
	if output.Valid {
		j.Output = json.RawMessage(output.String)
	}
	if errMsg.Valid {
		j.Error = &errMsg.String
	}
	return &j, nil
}

// MarkRunning moves a job to running and clears any previous outcome.
func (s *JobStore) MarkRunning(jobID string) error {
	return s.update(jobID, JobRunning, nil, nil)
}

// MarkSucceeded records output and moves the job to succeeded.
func (s *JobStore) MarkSucceeded(jobID string, output any) error {
	b, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("encode job output: %w", err)
	}
	out := string(b)
	return s.update(jobID, JobSucceeded, &out, nil)
}

// MarkFailed records msg and moves the job to failed.
func (s *JobStore) MarkFailed(jobID, msg string) error {
	return s.update(jobID, JobFailed, nil, &msg)
}

func (s *JobStore) update(jobID, status string, output, errMsg *string) error {
	return retryOnBusy(func() error {
		res, err := s.db.Exec(`
			UPDATE jobs SET status = ?, output = ?, error = ?, updated_at = ?
			WHERE job_id = ?`,
			status, output, errMsg, time.Now().UnixNano(), jobID,
		)
		if err != nil {
			return fmt.Errorf("update job %s: %w", jobID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
		}
		return nil
	})
}

// CountByStatus returns the number of jobs in each status.
func (s *JobStore) CountByStatus() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("query job counts: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
