package observability

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/goccy/go-json"

	"github.com/blueberrycongee/inferd/pkg/types"
)

// S3AuditConfig configures the audit trail shipper. Endpoint supports
// MinIO and other S3-compatible stores.
type S3AuditConfig struct {
	Bucket        string
	Region        string
	AccessKeyID   string
	SecretKey     string
	Endpoint      string
	KeyPrefix     string
	FlushInterval time.Duration
	MaxBatch      int
}

func (c S3AuditConfig) withDefaults() S3AuditConfig {
	if c.FlushInterval <= 0 {
		c.FlushInterval = 30 * time.Second
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = 100
	}
	return c
}

// s3API is the slice of the S3 client the shipper uses.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3AuditShipper batches generation audit records and uploads them as
// date-partitioned JSONL objects. Record never blocks the request path.
type S3AuditShipper struct {
	cfg    S3AuditConfig
	client s3API
	logger *slog.Logger

	mu    sync.Mutex
	queue []types.AuditRecord

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewS3AuditShipper builds the shipper and starts its flush loop.
func NewS3AuditShipper(ctx context.Context, cfg S3AuditConfig, logger *slog.Logger) (*S3AuditShipper, error) {
	cfg = cfg.withDefaults()
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("audit: bucket is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("audit: load AWS config: %w", err)
	}

	s3Opts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	sh := &S3AuditShipper{
		cfg:    cfg,
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		logger: logger,
		queue:  make([]types.AuditRecord, 0, cfg.MaxBatch),
		stopCh: make(chan struct{}),
	}

	sh.wg.Add(1)
	go sh.flushLoop()
	return sh, nil
}

// Record enqueues one audit record.
func (sh *S3AuditShipper) Record(_ context.Context, rec types.AuditRecord) {
	sh.mu.Lock()
	sh.queue = append(sh.queue, rec)
	full := len(sh.queue) >= sh.cfg.MaxBatch
	sh.mu.Unlock()

	if full {
		go sh.flush(context.Background())
	}
}

// Shutdown stops the flush loop and drains the queue.
func (sh *S3AuditShipper) Shutdown(ctx context.Context) error {
	close(sh.stopCh)
	sh.wg.Wait()
	return sh.flush(ctx)
}

func (sh *S3AuditShipper) flushLoop() {
	defer sh.wg.Done()

	ticker := time.NewTicker(sh.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := sh.flush(context.Background()); err != nil {
				sh.logger.Error("audit flush failed", "error", err)
			}
		case <-sh.stopCh:
			return
		}
	}
}

func (sh *S3AuditShipper) flush(ctx context.Context) error {
	sh.mu.Lock()
	if len(sh.queue) == 0 {
		sh.mu.Unlock()
		return nil
	}
	records := sh.queue
	sh.queue = make([]types.AuditRecord, 0, sh.cfg.MaxBatch)
	sh.mu.Unlock()

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for i := range records {
		if err := encoder.Encode(&records[i]); err != nil {
			sh.logger.Warn("audit record not encodable, skipping",
				"request_id", records[i].RequestID,
				"error", err)
		}
	}

	key := sh.objectKey(time.Now().UTC())
	_, err := sh.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(sh.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("audit: upload %s: %w", key, err)
	}
	return nil
}

// objectKey partitions objects by date and hour so downstream queries can
// prune by time range.
func (sh *S3AuditShipper) objectKey(t time.Time) string {
	datePrefix := fmt.Sprintf("year=%d/month=%02d/day=%02d/hour=%02d",
		t.Year(), t.Month(), t.Day(), t.Hour())
	filename := fmt.Sprintf("audit_%d.jsonl", t.UnixNano())

	if sh.cfg.KeyPrefix != "" {
		return path.Join(sh.cfg.KeyPrefix, datePrefix, filename)
	}
	return path.Join(datePrefix, filename)
}
