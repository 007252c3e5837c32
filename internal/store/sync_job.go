package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SyncJob is one configured root-to-remote-prefix sync job, the restructured
// counterpart of internal/database's SyncJob for this engine's own fields
// (exclusion patterns and the change-log watermark replace the GUI app's
// trigger/conflict/network fields, which have no equivalent here).
type SyncJob struct {
	ID                int64
	RootID            string
	Name              string
	LocalPath         string
	RemotePrefix      string
	Enabled           bool
	ExclusionPatterns []string
	LastChangeLogTS   time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CreateSyncJob inserts a new job row.
func (s *Store) CreateSyncJob(job *SyncJob) error {
	patterns, err := json.Marshal(job.ExclusionPatterns)
	if err != nil {
		return fmt.Errorf("marshal exclusion patterns: %w", err)
	}
	now := time.Now().Unix()
	result, err := s.conn.Exec(`
		INSERT INTO sync_job (root_id, name, local_path, remote_prefix, enabled, exclusion_patterns, last_change_log_ts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.RootID, job.Name, job.LocalPath, job.RemotePrefix, job.Enabled, string(patterns), job.LastChangeLogTS.Unix(), now, now)
	if err != nil {
		return fmt.Errorf("create sync job: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	job.ID = id
	job.CreatedAt = time.Unix(now, 0)
	job.UpdatedAt = job.CreatedAt
	return nil
}

// GetSyncJob looks up a job by id. Returns nil, nil if not found.
func (s *Store) GetSyncJob(id int64) (*SyncJob, error) {
	return scanSyncJob(s.conn.QueryRow(`
		SELECT id, root_id, name, local_path, remote_prefix, enabled, exclusion_patterns, last_change_log_ts, created_at, updated_at
		FROM sync_job WHERE id = ?
	`, id))
}

func scanSyncJob(row *sql.Row) (*SyncJob, error) {
	var job SyncJob
	var patterns string
	var lastTS, createdAt, updatedAt int64
	err := row.Scan(&job.ID, &job.RootID, &job.Name, &job.LocalPath, &job.RemotePrefix, &job.Enabled, &patterns, &lastTS, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan sync job: %w", err)
	}
	if err := json.Unmarshal([]byte(patterns), &job.ExclusionPatterns); err != nil {
		return nil, fmt.Errorf("unmarshal exclusion patterns: %w", err)
	}
	job.LastChangeLogTS = time.Unix(lastTS, 0)
	job.CreatedAt = time.Unix(createdAt, 0)
	job.UpdatedAt = time.Unix(updatedAt, 0)
	return &job, nil
}

// AdvanceChangeLogWatermark persists last_ts after a successful poll
// iteration, the durable counterpart to the poller's in-memory cursor.
func (s *Store) AdvanceChangeLogWatermark(jobID int64, lastTS time.Time) error {
	result, err := s.conn.Exec(`
		UPDATE sync_job SET last_change_log_ts = ?, updated_at = ? WHERE id = ?
	`, lastTS.Unix(), time.Now().Unix(), jobID)
	if err != nil {
		return fmt.Errorf("advance change-log watermark: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("sync job %d not found", jobID)
	}
	return nil
}
