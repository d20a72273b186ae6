package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"magicworld/backend/internal/models"
)

// Enqueue stores a side effect job for the worker to pick up.
func (r *Repository) Enqueue(ctx context.Context, kind string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
INSERT INTO side_effect_jobs (kind, payload, status, run_at)
VALUES ($1, $2::jsonb, $3, now());`, kind, raw, models.JobStatusPending)
	return err
}

// FetchDueJobs claims up to limit pending jobs and marks them processing.
// SKIP LOCKED lets multiple workers poll the same table safely.
func (r *Repository) FetchDueJobs(ctx context.Context, limit int) ([]models.SideEffectJob, error) {
	query := `
WITH cte AS (
	SELECT id
	FROM side_effect_jobs
	WHERE status = 'pending' AND run_at <= now()
	ORDER BY run_at ASC
	LIMIT $1
	FOR UPDATE SKIP LOCKED
)
UPDATE side_effect_jobs j
SET status = 'processing', updated_at = now()
FROM cte
WHERE j.id = cte.id
RETURNING j.id::text, j.kind, j.payload, j.status, j.attempts, COALESCE(j.last_error, ''), j.run_at, j.created_at;`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]models.SideEffectJob, 0)
	for rows.Next() {
		var job models.SideEffectJob
		if err := rows.Scan(&job.ID, &job.Kind, &job.Payload, &job.Status, &job.Attempts, &job.LastError, &job.RunAt, &job.CreatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *Repository) UpdateJobStatus(ctx context.Context, jobID string, status string, attempts int, lastError string, nextRun *time.Time) error {
	query := `UPDATE side_effect_jobs SET status = $1, attempts = $2, last_error = $3, run_at = COALESCE($4, run_at), updated_at = now() WHERE id = $5::uuid`
	_, err := r.pool.Exec(ctx, query, status, attempts, nullString(lastError), nextRun, jobID)
	return err
}

// RequeueStaleProcessing returns jobs stuck in processing to pending, for
// workers that died mid-run.
func (r *Repository) RequeueStaleProcessing(ctx context.Context, staleAfter time.Duration) error {
	query := `UPDATE side_effect_jobs SET status = 'pending', updated_at = now() WHERE status = 'processing' AND updated_at <= now() - $1::interval`
	interval := fmt.Sprintf("%d seconds", int(staleAfter.Seconds()))
	_, err := r.pool.Exec(ctx, query, interval)
	return err
}
