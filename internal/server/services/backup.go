package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/dmitrijs2005/praylist/internal/logging"
	sc "github.com/dmitrijs2005/praylist/internal/server/config"
	"github.com/dmitrijs2005/praylist/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/praylist/internal/wire"
	"github.com/google/uuid"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}
)

// BackupDocument is the JSON object written to the bucket. It holds only
// what the server already stores: ciphertext records and the metadata blob.
type BackupDocument struct {
	Account         string          `json:"account"`
	Created         int64           `json:"created"`
	Items           []wire.Item     `json:"items"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	MetadataVersion int64           `json:"metadataVersion,omitempty"`
}

// BackupService exports an account's encrypted data to S3-compatible storage.
type BackupService interface {
	// Backup writes a snapshot and returns its object key.
	Backup(ctx context.Context, account string) (string, error)
}

type backupService struct {
	repos  repomanager.RepositoryManager
	config *sc.Config
	log    logging.Logger
	now    func() time.Time
}

func NewBackupService(m repomanager.RepositoryManager, cfg *sc.Config, log logging.Logger) BackupService {
	return &backupService{
		repos:  m,
		config: cfg,
		log:    log.With("module", "backup"),
		now:    time.Now,
	}
}

// BackupKey places snapshots under the account, one folder per day.
func BackupKey(account string, d time.Time) string {
	return fmt.Sprintf("accounts/%s/%d/%02d/%02d/%v.json", account, d.Year(), d.Month(), d.Day(), uuid.New())
}

func (s *backupService) getClient(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	}), nil
}

func (s *backupService) snapshot(ctx context.Context, account string) (*BackupDocument, error) {
	recs, err := s.repos.Records(s.repos.Conn()).List(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	acc, err := s.repos.Accounts(s.repos.Conn()).Get(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	doc := &BackupDocument{
		Account:         account,
		Created:         s.now().UnixMilli(),
		Items:           make([]wire.Item, 0, len(recs)),
		Metadata:        acc.Metadata,
		MetadataVersion: acc.MetadataVersion,
	}
	for _, r := range recs {
		doc.Items = append(doc.Items, toItem(r))
	}
	return doc, nil
}

func (s *backupService) Backup(ctx context.Context, account string) (string, error) {
	doc, err := s.snapshot(ctx, account)
	if err != nil {
		s.log.Error(ctx, "backup snapshot failed", "account", account, "error", err)
		return "", common.ErrorInternal
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}

	client, err := s.getClient(ctx)
	if err != nil {
		s.log.Error(ctx, "s3 client init failed", "error", err)
		return "", common.ErrorInternal
	}

	bucket := s.config.S3Bucket
	key := BackupKey(account, s.now())

	_, err = putObject(client, ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		s.log.Error(ctx, "backup upload failed", "account", account, "key", key, "error", err)
		return "", common.ErrorInternal
	}

	s.log.Info(ctx, "backup written", "account", account, "key", key, "items", len(doc.Items))
	return key, nil
}
