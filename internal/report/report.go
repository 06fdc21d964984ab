// Package report builds the machine-readable result of a run and ships it to
// stdout, a file or S3.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/johndauphine/rowmigrate/internal/errclass"
	"github.com/johndauphine/rowmigrate/internal/transfer"
)

// Run statuses.
const (
	StatusSuccess             = "success"
	StatusCompletedWithErrors = "completed_with_errors"
	StatusFailed              = "failed"
	StatusCancelled           = "cancelled"
)

// Result is the outcome of one run.
type Result struct {
	RunID           string                    `json:"run_id"`
	Status          string                    `json:"status"`
	StartedAt       time.Time                 `json:"started_at"`
	CompletedAt     time.Time                 `json:"completed_at"`
	DurationSeconds float64                   `json:"duration_seconds"`
	Source          string                    `json:"source"`
	Target          string                    `json:"target"`
	DryRun          bool                      `json:"dry_run,omitempty"`
	Inserted        int64                     `json:"inserted"`
	Errors          int64                     `json:"errors"`
	Skipped         int64                     `json:"skipped"`
	RowsPerSecond   float64                   `json:"rows_per_second"`
	Migrations      []transfer.MigrationStats `json:"migrations"`
	ErrorSummary    map[errclass.Kind]int     `json:"error_summary,omitempty"`
	Error           string                    `json:"error,omitempty"`
}

// New starts a result for runID.
func New(runID, source, target string, started time.Time) *Result {
	return &Result{
		RunID:     runID,
		Status:    StatusSuccess,
		StartedAt: started,
		Source:    source,
		Target:    target,
	}
}

// Complete fills in totals from the per-migration stats and the classifier
// summary, and picks the status. runErr is the error that ended the run early,
// if any.
func (r *Result) Complete(stats []transfer.MigrationStats, summary map[errclass.Kind]int, runErr error, cancelled bool) {
	r.CompletedAt = time.Now()
	r.DurationSeconds = r.CompletedAt.Sub(r.StartedAt).Seconds()
	r.Migrations = stats
	r.ErrorSummary = summary

	r.Inserted, r.Errors, r.Skipped = 0, 0, 0
	abandoned := false
	for _, s := range stats {
		r.Inserted += int64(s.Inserted)
		r.Errors += int64(s.Error)
		r.Skipped += int64(s.Skipped)
		if s.Abandoned {
			abandoned = true
		}
	}
	if r.DurationSeconds > 0 {
		r.RowsPerSecond = float64(r.Inserted) / r.DurationSeconds
	}

	switch {
	case cancelled:
		r.Status = StatusCancelled
	case runErr != nil:
		r.Status = StatusFailed
	case r.Errors > 0 || abandoned:
		r.Status = StatusCompletedWithErrors
	default:
		r.Status = StatusSuccess
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}
}

// Abandoned returns the names of migrations that loaded nothing.
func (r *Result) Abandoned() []string {
	var names []string
	for _, s := range r.Migrations {
		if s.Abandoned {
			names = append(names, s.Name)
		}
	}
	return names
}

// JSON renders the result indented.
func (r *Result) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return data, nil
}

// WriteFile writes the result as JSON to path.
func (r *Result) WriteFile(path string) error {
	data, err := r.JSON()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

// Uploader stores results in an S3 bucket under
// <prefix>/date=YYYY-MM-DD/run_id=<id>/report.json.
type Uploader struct {
	client s3iface.S3API
	bucket string
	prefix string
}

// NewUploader wraps an S3 client.
func NewUploader(client s3iface.S3API, bucket, prefix string) *Uploader {
	return &Uploader{client: client, bucket: bucket, prefix: prefix}
}

// NewS3Uploader creates an uploader with a client from the default AWS
// credential chain. An empty region falls back to the environment.
func NewS3Uploader(region, bucket, prefix string) (*Uploader, error) {
	cfg := aws.NewConfig()
	if region != "" {
		cfg = cfg.WithRegion(region)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating AWS session: %w", err)
	}
	return NewUploader(s3.New(sess), bucket, prefix), nil
}

// Key returns the object key for r.
func (u *Uploader) Key(r *Result) string {
	return path.Join(u.prefix, "date="+r.StartedAt.UTC().Format("2006-01-02"), "run_id="+r.RunID, "report.json")
}

// Upload puts the result JSON into the bucket and returns its key.
func (u *Uploader) Upload(ctx context.Context, r *Result) (string, error) {
	data, err := r.JSON()
	if err != nil {
		return "", err
	}
	key := u.Key(r)
	_, err = u.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("uploading report to s3://%s/%s: %w", u.bucket, key, err)
	}
	return key, nil
}
