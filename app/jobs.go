package app

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"example/staging-api/app/models"
)

var errJobNotFound = errors.New("job not found")

func createGenerationJob(ctx context.Context, jobID, userID, kind string) error {
	const q = `
        INSERT INTO generation_jobs (id, user_id, kind, status)
        VALUES ($1, $2, $3, 'queued');
    `
	if _, err := db.ExecContext(ctx, q, jobID, userID, kind); err != nil {
		return err
	}
	log.Printf("Created job %s for user=%s kind=%s", jobID, userID, kind)
	return nil
}

// setJobResult moves a job to a new status, recording the result URL or
// error message when present.
func setJobResult(ctx context.Context, jobID, status, resultURL, errMsg string) error {
	const q = `
        UPDATE generation_jobs
        SET
            status = $1,
            result_url = NULLIF($2, ''),
            error = NULLIF($3, ''),
            updated_at = now()
        WHERE id = $4;
    `

	res, err := db.ExecContext(ctx, q, status, resultURL, errMsg, jobID)
	if err != nil {
		return err
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		log.Printf("setJobResult: no job row found for id=%s", jobID)
	}

	return nil
}

// FindJobStatus fetches status and result for a job id, scoped to its owner.
// A job belonging to another user is indistinguishable from a missing one.
func FindJobStatus(ctx context.Context, jobID, userID string) (models.JobStatus, error) {
	var (
		js        models.JobStatus
		resultURL sql.NullString
		jobErr    sql.NullString
	)

	const q = `
        SELECT id, status, kind, result_url, error
        FROM generation_jobs
        WHERE id = $1 AND user_id = $2;
    `

	row := db.QueryRowContext(ctx, q, jobID, userID)
	if err := row.Scan(&js.ID, &js.Status, &js.Kind, &resultURL, &jobErr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.JobStatus{}, errJobNotFound
		}
		return models.JobStatus{}, err
	}

	if resultURL.Valid {
		js.ResultURL = &resultURL.String
	}
	if jobErr.Valid {
		js.Error = &jobErr.String
	}

	return js, nil
}
