package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/inferd/pkg/types"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = make(map[string]string)
	}
	f.objects[*params.Key] = string(body)
	return &s3.PutObjectOutput{}, nil
}

func newTestShipper(cfg S3AuditConfig, client s3API) *S3AuditShipper {
	sh := &S3AuditShipper{
		cfg:    cfg.withDefaults(),
		client: client,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		stopCh: make(chan struct{}),
	}
	sh.wg.Add(1)
	go sh.flushLoop()
	return sh
}

func TestShipperFlushesJSONL(t *testing.T) {
	fake := &fakeS3{}
	sh := newTestShipper(S3AuditConfig{Bucket: "audit", KeyPrefix: "gw"}, fake)

	sh.Record(context.Background(), types.AuditRecord{
		RequestID: "req-1",
		Timestamp: time.Now().UTC(),
		CacheHit:  true,
		Tokens:    12,
	})
	sh.Record(context.Background(), types.AuditRecord{
		RequestID: "req-2",
		Blocked:   true,
	})

	require.NoError(t, sh.Shutdown(context.Background()))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.objects, 1)
	for key, body := range fake.objects {
		assert.True(t, strings.HasPrefix(key, "gw/year="), "key %q should be date partitioned", key)
		assert.True(t, strings.HasSuffix(key, ".jsonl"))
		lines := strings.Split(strings.TrimSpace(body), "\n")
		require.Len(t, lines, 2)
		assert.Contains(t, lines[0], `"request_id":"req-1"`)
		assert.Contains(t, lines[1], `"blocked":true`)
	}
}

func TestShipperFlushesWhenBatchFull(t *testing.T) {
	fake := &fakeS3{}
	sh := newTestShipper(S3AuditConfig{Bucket: "audit", MaxBatch: 2, FlushInterval: time.Hour}, fake)
	defer sh.Shutdown(context.Background())

	sh.Record(context.Background(), types.AuditRecord{RequestID: "a"})
	sh.Record(context.Background(), types.AuditRecord{RequestID: "b"})

	assert.Eventually(t, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		return len(fake.objects) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestShipperEmptyFlushIsNoop(t *testing.T) {
	fake := &fakeS3{}
	sh := newTestShipper(S3AuditConfig{Bucket: "audit"}, fake)

	require.NoError(t, sh.Shutdown(context.Background()))
	assert.Empty(t, fake.objects)
}
