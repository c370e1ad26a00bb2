package main

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"patent-hand/config"
	"patent-hand/storage"
)

type BackupConfig struct {
	BackupBucket    string `envconfig:"BACKUP_S3_BUCKET" required:"true"`
	BackupEndpoint  string `envconfig:"BACKUP_S3_ENDPOINT" required:"true"`
	BackupAccessKey string `envconfig:"BACKUP_S3_ACCESS_KEY" required:"true"`
	BackupSecretKey string `envconfig:"BACKUP_S3_SECRET_KEY" required:"true"`
	BackupRegion    string `envconfig:"BACKUP_S3_REGION" required:"true"`
	BackupPrefix    string `envconfig:"BACKUP_PREFIX" default:"patent-hand/"`
	KeepBackups     int    `envconfig:"KEEP_BACKUPS" default:"4"`
}

func (c BackupConfig) s3() storage.S3Config {
	return storage.S3Config{
		Endpoint:  c.BackupEndpoint,
		Region:    c.BackupRegion,
		AccessKey: c.BackupAccessKey,
		SecretKey: c.BackupSecretKey,
		Bucket:    c.BackupBucket,
	}
}

func main() {
	log.Println("Starte Backup-Prozess...")
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Fehler beim Laden der Konfiguration: %v", err)
	}
	var backupCfg BackupConfig
	if err := envconfig.Process("", &backupCfg); err != nil {
		log.Fatalf("Fehler beim Laden der Backup-Konfiguration: %v", err)
	}

	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	// 1. Tabellen exportieren
	store, err := storage.Open(ctx, cfg, logging)
	if err != nil {
		log.Fatalf("Fehler beim Öffnen der Datenbank: %v", err)
	}
	var buf bytes.Buffer
	counts, err := store.Export(ctx, &buf)
	store.Close()
	if err != nil {
		log.Fatalf("Fehler beim Export: %v", err)
	}
	logging.Info("Export erstellt", zap.Any("rows", counts), zap.Int("bytes", buf.Len()))

	// 2. S3-Client erstellen
	s3Client, err := storage.NewS3Client(ctx, backupCfg.s3())
	if err != nil {
		log.Fatalf("Fehler beim Erstellen des S3-Clients: %v", err)
	}

	// 3. Backup nach S3 hochladen
	key := fmt.Sprintf("%sbackup-%s.jsonl.gz", backupCfg.BackupPrefix, time.Now().UTC().Format("2006-01-02T15-04-05Z"))
	if _, err := storage.UploadFile(ctx, s3Client, backupCfg.s3(), key, buf.Bytes()); err != nil {
		log.Fatalf("Fehler beim Hochladen nach S3: %v", err)
	}
	log.Printf("Backup erfolgreich nach s3://%s/%s hochgeladen", backupCfg.BackupBucket, key)

	// 4. Alte Backups rotieren
	if err := rotateBackups(ctx, s3Client, backupCfg); err != nil {
		log.Fatalf("Fehler bei der Rotation alter Backups: %v", err)
	}

	log.Println("Backup-Prozess erfolgreich abgeschlossen.")
}

func rotateBackups(ctx context.Context, client *s3.Client, cfg BackupConfig) error {
	output, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(cfg.BackupBucket),
		Prefix: aws.String(cfg.BackupPrefix),
	})
	if err != nil {
		return err
	}

	if len(output.Contents) <= cfg.KeepBackups {
		log.Printf("Weniger als %d Backups vorhanden, keine Rotation nötig.", cfg.KeepBackups)
		return nil
	}

	sort.Slice(output.Contents, func(i, j int) bool {
		return output.Contents[i].LastModified.After(*output.Contents[j].LastModified)
	})

	for _, obj := range output.Contents[cfg.KeepBackups:] {
		log.Printf("Lösche altes Backup: %s", *obj.Key)
		_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(cfg.BackupBucket),
			Key:    obj.Key,
		})
		if err != nil {
			log.Printf("Fehler beim Löschen von %s: %v", *obj.Key, err)
		}
	}

	return nil
}
