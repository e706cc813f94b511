// Package archive writes committed transition records to object storage so
// the audit trail survives outside the primary database.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// TransitionRecord is the envelope stored per applied transition.
type TransitionRecord struct {
	CaseID        int64     `json:"caseId"`
	SupplyID      int64     `json:"supplyId"`
	Before        string    `json:"before"`
	After         string    `json:"after"`
	HistoryID     int64     `json:"historyId"`
	ClosedCaseIDs []int64   `json:"closedCaseIds,omitempty"`
	Message       string    `json:"message,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// Archiver uploads transition records to durable storage.
type Archiver interface {
	ArchiveTransition(ctx context.Context, rec TransitionRecord) error
}

// S3Archiver writes records to s3://<bucket>/<prefix>/transitions/YYYY/MM/DD/.
type S3Archiver struct {
	bucket   string
	prefix   string
	uploader *manager.Uploader
}

// NewS3Archiver builds an archiver on the default AWS config chain
// (AWS_REGION, profiles, instance credentials).
func NewS3Archiver(ctx context.Context, bucket, prefix string) (*S3Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Archiver{
		bucket:   bucket,
		prefix:   prefix,
		uploader: manager.NewUploader(client),
	}, nil
}

func (a *S3Archiver) ArchiveTransition(ctx context.Context, rec TransitionRecord) error {
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	ts := rec.OccurredAt.UTC()
	key := path.Join(
		a.prefix,
		"transitions",
		fmt.Sprintf("%04d/%02d/%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("case-%d-%s.json", rec.CaseID, uuid.NewString()),
	)

	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("upload transition record: %w", err)
	}
	return nil
}
