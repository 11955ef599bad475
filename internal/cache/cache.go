package cache

import (
	"context"
	"time"
)

// ReportCache memoizes rendered report payloads outside the ledger. Keys
// carry the ledger revision, so entries from before a write are simply never
// requested again and age out via TTL.
type ReportCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) ([]byte, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return nil
}
