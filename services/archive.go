package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"

	"github.com/arcfolio/folio_api/model"
	"github.com/arcfolio/folio_api/shared"
)

// ArchiveService snapshots record pages to an S3-compatible bucket. The
// backing document API is the source of truth; archives are cold copies
// taken on demand, so the service degrades gracefully when unconfigured.
type ArchiveService struct {
	appContext.DefaultService
	client     *minio.Client
	bucketName string
	endpoint   string
	accessKey  string
	secretKey  string
	useSSL     bool
}

const ARCHIVE_SVC = "archive_svc"

func (svc ArchiveService) Id() string {
	return ARCHIVE_SVC
}

func (svc *ArchiveService) Configure(ctx *appContext.Context) error {
	svc.endpoint = os.Getenv("ARCHIVE_ENDPOINT")
	svc.accessKey = os.Getenv("ARCHIVE_ACCESS_KEY")
	svc.secretKey = os.Getenv("ARCHIVE_SECRET_KEY")
	svc.useSSL = os.Getenv("ARCHIVE_USE_SSL") == "true"

	svc.bucketName = os.Getenv("ARCHIVE_BUCKET_NAME")
	if svc.bucketName == "" {
		svc.bucketName = "folio-archive"
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *ArchiveService) Start() error {
	if svc.endpoint == "" {
		log.Warn("Archive endpoint not configured, exports disabled")
		return nil
	}

	client, err := minio.New(svc.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(svc.accessKey, svc.secretKey, ""),
		Secure: svc.useSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to create archive client: %v", err)
	}

	svc.client = client

	if err := svc.ensureBucket(); err != nil {
		return fmt.Errorf("failed to ensure archive bucket exists: %v", err)
	}

	log.WithField("endpoint", svc.endpoint).Info("Archive service started")
	return nil
}

func (svc *ArchiveService) ensureBucket() error {
	ctx := context.Background()

	exists, err := svc.client.BucketExists(ctx, svc.bucketName)
	if err != nil {
		return err
	}

	if !exists {
		if err := svc.client.MakeBucket(ctx, svc.bucketName, minio.MakeBucketOptions{}); err != nil {
			return err
		}
		log.WithField("bucket", svc.bucketName).Info("Created archive bucket")
	}

	return nil
}

// StoreVisitRecords writes one export snapshot and returns its object key.
func (svc *ArchiveService) StoreVisitRecords(ctx context.Context, records []model.StoredVisitRecord) (string, error) {
	if svc.client == nil {
		return "", &shared.AppError{
			StatusCode: 503,
			Message:    "Archive storage is not configured",
		}
	}

	payload, err := shared.JSONMarshal(records)
	if err != nil {
		return "", shared.NewInternalError(err, "Failed to encode export")
	}

	key := fmt.Sprintf("exports/visits-%s-%s.json",
		time.Now().UTC().Format("20060102T150405"),
		uuid.NewString()[:8])

	_, err = svc.client.PutObject(ctx, svc.bucketName, key,
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", shared.NewInternalError(err, "Failed to write export object")
	}

	log.WithField("key", key).WithField("records", len(records)).Info("Visit records archived")
	return key, nil
}
