package di

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/aristath/tradedesk/internal/config"
	"github.com/aristath/tradedesk/internal/database"
	"github.com/aristath/tradedesk/internal/registry"
	"github.com/aristath/tradedesk/internal/store"
	"github.com/aristath/tradedesk/plugins/taskhandlers/backup"
)

// registerBackupHandler registers the object-storage backup task handler
// when cfg opts in with a bucket name. BackupEndpoint lets it target an
// S3-compatible store (e.g. Cloudflare R2) instead of AWS proper.
func registerBackupHandler(reg *registry.Registry, st *store.Store, db *database.DB, cfg *config.Config, log zerolog.Logger) error {
	if !cfg.BackupEnabled || cfg.BackupBucket == "" {
		return nil
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.BackupRegion),
	}
	if cfg.BackupAccessKeyID != "" && cfg.BackupSecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.BackupAccessKeyID, cfg.BackupSecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return fmt.Errorf("load object storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BackupEndpoint != "" {
			o.BaseEndpoint = &cfg.BackupEndpoint
		}
		o.UsePathStyle = true
	})

	retentionDays := int(cfg.BackupRetention.Hours() / 24)
	handler := backup.NewFromClient(st, db, client, cfg.BackupBucket, retentionDays, log)
	reg.Register(registry.KindTaskHandler, handler)
	return nil
}
