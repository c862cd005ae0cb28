package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/homebudget/internal/database"
)

var ErrNoSnapshots = errors.New("no snapshots found")

// s3Client is the subset of *s3.Client the manager uses.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Config describes an S3-compatible bucket and how snapshots are kept there.
type Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Prefix    string

	Passphrase string
	Retention  time.Duration
}

// Enabled reports whether enough is configured to upload.
func (c Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// Manager takes encrypted snapshots of the database and uploads them.
type Manager struct {
	mu     sync.Mutex
	cfg    Config
	db     *sql.DB
	client s3Client
	logger *slog.Logger
	now    func() time.Time
}

func NewManager(cfg Config, db *sql.DB, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		db:     db,
		client: newS3Client(cfg),
		logger: logger.With("component", "backup"),
		now:    time.Now,
	}
}

func newS3Client(cfg Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Run snapshots and prunes every interval until ctx is cancelled.
// Failures are logged; the loop keeps going.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			key, size, err := m.Snapshot(ctx)
			if err != nil {
				m.logger.Error("snapshot failed", "error", err)
				continue
			}
			m.logger.Info("snapshot uploaded", "key", key, "bytes", size)

			if n, err := m.Prune(ctx); err != nil {
				m.logger.Error("prune snapshots", "error", err)
			} else if n > 0 {
				m.logger.Info("pruned snapshots", "count", n)
			}
		}
	}
}

// Snapshot copies the live database with VACUUM INTO, encrypts the copy,
// and uploads it. It returns the object key and the uploaded size.
func (m *Manager) Snapshot(ctx context.Context) (string, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dir, err := os.MkdirTemp("", "homebudget-backup-")
	if err != nil {
		return "", 0, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	copyPath := filepath.Join(dir, "snapshot.db")
	if _, err := m.db.ExecContext(ctx, "VACUUM INTO ?", copyPath); err != nil {
		return "", 0, fmt.Errorf("vacuum into: %w", err)
	}
	plaintext, err := os.ReadFile(copyPath)
	if err != nil {
		return "", 0, fmt.Errorf("read snapshot: %w", err)
	}

	salt, err := GenerateSalt()
	if err != nil {
		return "", 0, err
	}
	sealed, err := Seal(plaintext, m.cfg.Passphrase, salt)
	if err != nil {
		return "", 0, fmt.Errorf("encrypt snapshot: %w", err)
	}

	key := m.objectKey(m.now().UTC())
	if _, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
	}); err != nil {
		return "", 0, fmt.Errorf("upload snapshot: %w", err)
	}
	return key, int64(len(sealed)), nil
}

// Prune deletes snapshots under the prefix older than the retention window.
// A zero retention keeps everything.
func (m *Manager) Prune(ctx context.Context) (int, error) {
	if m.cfg.Retention <= 0 {
		return 0, nil
	}
	cutoff := m.now().Add(-m.cfg.Retention)

	pages := s3.NewListObjectsV2Paginator(m.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(m.cfg.Bucket),
		Prefix: aws.String(m.keyPrefix()),
	})

	deleted := 0
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return deleted, fmt.Errorf("list snapshots: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.LastModified == nil || !obj.LastModified.Before(cutoff) {
				continue
			}
			if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(m.cfg.Bucket),
				Key:    obj.Key,
			}); err != nil {
				m.logger.Warn("delete snapshot", "key", aws.ToString(obj.Key), "error", err)
				continue
			}
			deleted++
		}
	}
	return deleted, nil
}

// Latest returns the key of the most recently uploaded snapshot.
func (m *Manager) Latest(ctx context.Context) (string, error) {
	pages := s3.NewListObjectsV2Paginator(m.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(m.cfg.Bucket),
		Prefix: aws.String(m.keyPrefix()),
	})

	var latest string
	var latestAt time.Time
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return "", fmt.Errorf("list snapshots: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.LastModified == nil || obj.LastModified.Before(latestAt) {
				continue
			}
			latest = aws.ToString(obj.Key)
			latestAt = *obj.LastModified
		}
	}
	if latest == "" {
		return "", ErrNoSnapshots
	}
	return latest, nil
}

// Restore downloads the snapshot at key, decrypts it, checks that it opens
// and migrates cleanly, and only then moves it over dbPath. The server must
// not be running against dbPath.
func (m *Manager) Restore(ctx context.Context, key, dbPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("download snapshot: %w", err)
	}
	sealed, err := io.ReadAll(out.Body)
	out.Body.Close()
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	plaintext, err := Open(sealed, m.cfg.Passphrase)
	if err != nil {
		return fmt.Errorf("decrypt snapshot: %w", err)
	}

	tmp := dbPath + ".restore"
	defer func() {
		os.Remove(tmp)
		removeSidecars(tmp)
	}()
	if err := os.WriteFile(tmp, plaintext, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := validate(tmp); err != nil {
		return err
	}

	if err := os.Rename(tmp, dbPath); err != nil {
		return fmt.Errorf("replace database: %w", err)
	}
	// a leftover WAL would be replayed onto the restored file
	removeSidecars(dbPath)
	m.logger.Info("snapshot restored", "key", key, "path", dbPath, "bytes", len(plaintext))
	return nil
}

func validate(path string) error {
	db, err := database.Open(path)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check: %s", result)
	}
	return nil
}

func removeSidecars(path string) {
	os.Remove(path + "-wal")
	os.Remove(path + "-shm")
}

func (m *Manager) keyPrefix() string {
	return path.Join(m.cfg.Prefix, "homebudget-")
}

func (m *Manager) objectKey(at time.Time) string {
	return m.keyPrefix() + at.Format("20060102T150405Z") + ".db.enc"
}
