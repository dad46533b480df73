package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/absherpay/absher-bfa-go/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func reportKey(walletID string, fromMs, toMs int64) string {
	return fmt.Sprintf("report:%s:%d:%d", walletID, fromMs, toMs)
}

func walletIndexKey(walletID string) string {
	return "report-index:" + walletID
}

// ============================================================
// In-memory report cache
// ============================================================

// MemoryReport caches generated reports in process memory, keyed by
// (walletID, fromDate, toDate), with per-wallet invalidation. Used when no
// Redis address is configured.
type MemoryReport struct {
	inner *InMemory[*domain.Report]

	mu   sync.Mutex
	keys map[string]map[string]struct{} // walletID -> set of cache keys
}

// NewMemoryReport creates an in-memory report cache with the given TTL.
func NewMemoryReport(ttl time.Duration) *MemoryReport {
	return &MemoryReport{
		inner: New[*domain.Report](ttl),
		keys:  make(map[string]map[string]struct{}),
	}
}

func (m *MemoryReport) Get(_ context.Context, walletID string, fromMs, toMs int64) (*domain.Report, bool) {
	return m.inner.Get(reportKey(walletID, fromMs, toMs))
}

func (m *MemoryReport) Set(_ context.Context, report *domain.Report) {
	key := reportKey(report.WalletID, report.FromDate, report.ToDate)
	m.inner.Set(key, report)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[report.WalletID] == nil {
		m.keys[report.WalletID] = make(map[string]struct{})
	}
	m.keys[report.WalletID][key] = struct{}{}
}

func (m *MemoryReport) ListWallet(_ context.Context, walletID string) []*domain.Report {
	m.mu.Lock()
	keys := make([]string, 0, len(m.keys[walletID]))
	for key := range m.keys[walletID] {
		keys = append(keys, key)
	}
	m.mu.Unlock()

	reports := make([]*domain.Report, 0, len(keys))
	for _, key := range keys {
		if report, ok := m.inner.Get(key); ok {
			reports = append(reports, report)
		}
	}
	return reports
}

func (m *MemoryReport) InvalidateWallet(_ context.Context, walletID string) {
	m.mu.Lock()
	keys := m.keys[walletID]
	delete(m.keys, walletID)
	m.mu.Unlock()

	for key := range keys {
		m.inner.Delete(key)
	}
}

// ============================================================
// Redis report cache
// ============================================================

// RedisReport caches generated reports in Redis so cached aggregates
// survive restarts and are shared across instances. Each wallet keeps a
// set of its report keys for wallet-wide invalidation after payments.
// Cache failures are logged and treated as misses.
type RedisReport struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisReport creates a Redis-backed report cache.
func NewRedisReport(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisReport {
	return &RedisReport{rdb: rdb, ttl: ttl, logger: logger}
}

func (r *RedisReport) Get(ctx context.Context, walletID string, fromMs, toMs int64) (*domain.Report, bool) {
	raw, err := r.rdb.Get(ctx, reportKey(walletID, fromMs, toMs)).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.Warn("report cache read failed", zap.String("wallet_id", walletID), zap.Error(err))
		}
		return nil, false
	}

	var report domain.Report
	if err := json.Unmarshal(raw, &report); err != nil {
		r.logger.Warn("report cache entry corrupt", zap.String("wallet_id", walletID), zap.Error(err))
		return nil, false
	}
	return &report, true
}

func (r *RedisReport) Set(ctx context.Context, report *domain.Report) {
	raw, err := json.Marshal(report)
	if err != nil {
		r.logger.Warn("report cache marshal failed", zap.Error(err))
		return
	}

	key := reportKey(report.WalletID, report.FromDate, report.ToDate)
	pipe := r.rdb.Pipeline()
	pipe.Set(ctx, key, raw, r.ttl)
	pipe.SAdd(ctx, walletIndexKey(report.WalletID), key)
	pipe.Expire(ctx, walletIndexKey(report.WalletID), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warn("report cache write failed", zap.String("wallet_id", report.WalletID), zap.Error(err))
	}
}

func (r *RedisReport) ListWallet(ctx context.Context, walletID string) []*domain.Report {
	keys, err := r.rdb.SMembers(ctx, walletIndexKey(walletID)).Result()
	if err != nil {
		r.logger.Warn("report cache index read failed", zap.String("wallet_id", walletID), zap.Error(err))
		return nil
	}
	if len(keys) == 0 {
		return nil
	}

	values, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		r.logger.Warn("report cache bulk read failed", zap.String("wallet_id", walletID), zap.Error(err))
		return nil
	}

	reports := make([]*domain.Report, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // expired member still in the index
		}
		var report domain.Report
		if err := json.Unmarshal([]byte(raw), &report); err != nil {
			r.logger.Warn("report cache entry corrupt", zap.String("wallet_id", walletID), zap.Error(err))
			continue
		}
		reports = append(reports, &report)
	}
	return reports
}

func (r *RedisReport) InvalidateWallet(ctx context.Context, walletID string) {
	keys, err := r.rdb.SMembers(ctx, walletIndexKey(walletID)).Result()
	if err != nil {
		r.logger.Warn("report cache invalidation failed", zap.String("wallet_id", walletID), zap.Error(err))
		return
	}

	keys = append(keys, walletIndexKey(walletID))
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		r.logger.Warn("report cache invalidation failed", zap.String("wallet_id", walletID), zap.Error(err))
	}
}
