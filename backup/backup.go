/*
Package backup uploads ledger exports to S3.

PURPOSE:
  The admin can snapshot the whole ledger to a bucket before bulk edits.
  Objects are keyed backups/ledger-<UTC timestamp>.xlsx and are never
  overwritten.

SEE ALSO:
  - workbook/export.go: Produces the uploaded bytes
  - api/handlers.go:    POST /api/admin/backup
*/
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/dnyanpeeth/fee-ledger/workbook"
)

// KeyPrefix is the folder every backup lands in.
const KeyPrefix = "backups/"

var ErrNotConfigured = errors.New("backup bucket not configured")

// PutObjectAPI is the subset of *s3.Client used here.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Result describes one stored backup.
type Result struct {
	Bucket string    `json:"bucket"`
	Key    string    `json:"key"`
	Size   int       `json:"size"`
	At     time.Time `json:"at"`
}

// Uploader stores workbooks in one bucket.
type Uploader struct {
	client PutObjectAPI
	bucket string
	now    func() time.Time
	log    logrus.FieldLogger
}

// New wraps an existing client.
func New(client PutObjectAPI, bucket string, logger logrus.FieldLogger) *Uploader {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Uploader{client: client, bucket: bucket, now: time.Now, log: logger}
}

// NewFromEnv loads the default AWS credential chain for region.
func NewFromEnv(ctx context.Context, region, bucket string, logger logrus.FieldLogger) (*Uploader, error) {
	if bucket == "" {
		return nil, ErrNotConfigured
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return New(s3.NewFromConfig(cfg), bucket, logger), nil
}

// WithClock overrides the timestamp source.
func (u *Uploader) WithClock(now func() time.Time) *Uploader {
	u.now = now
	return u
}

// ObjectKey returns the key for a backup taken at t.
func ObjectKey(t time.Time) string {
	return KeyPrefix + "ledger-" + t.UTC().Format("20060102T150405Z") + ".xlsx"
}

// Upload stores data as a new backup object.
func (u *Uploader) Upload(ctx context.Context, data []byte) (Result, error) {
	if u == nil || u.client == nil || u.bucket == "" {
		return Result{}, ErrNotConfigured
	}
	at := u.now()
	key := ObjectKey(at)

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(workbook.ContentType),
	})
	if err != nil {
		u.log.WithError(err).WithField("key", key).Error("backup upload failed")
		return Result{}, fmt.Errorf("failed to upload backup %s: %w", key, err)
	}

	u.log.WithFields(logrus.Fields{"bucket": u.bucket, "key": key, "bytes": len(data)}).Info("backup uploaded")
	return Result{Bucket: u.bucket, Key: key, Size: len(data), At: at}, nil
}
