package duplicates

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"orderflow/internal/orderflow/data"
	"orderflow/pkg/logging"
	"orderflow/pkg/threadsafe"
)

const (
	numberKind = "number"
	hashKind   = "hash"
)

// Buffer is the in-process tier: fast membership checks against recent
// traffic. The default implementation clears itself wholesale past a size
// limit, temporarily reopening the duplicate window for flushed entries;
// swap in an LRU behind this interface if that ever becomes a problem.
type Buffer interface {
	Contains(key string) bool
	Add(key string) bool
}

// SharedCache is the second tier, consulted when the buffer misses. It
// survives restarts and covers high-volume windows the buffer cannot hold.
type SharedCache interface {
	Contains(ctx context.Context, kind, key string) (bool, error)
	Add(ctx context.Context, kind, key string) error
}

type Config struct {
	BufferLimit int
}

// Checker detects duplicate submissions by order number and by item content.
// A negative answer marks the key as seen in both tiers. The check-then-mark
// sequence is not atomic: two concurrent submissions of the same key can both
// pass, which the at-least-once pipeline absorbs downstream.
type Checker struct {
	numbers Buffer
	hashes  Buffer
	shared  SharedCache
	logger  *logging.ZapLogger
}

func NewChecker(cfg Config, shared SharedCache, logger *logging.ZapLogger) *Checker {
	return &Checker{
		numbers: threadsafe.NewBoundedSet[string](cfg.BufferLimit),
		hashes:  threadsafe.NewBoundedSet[string](cfg.BufferLimit),
		shared:  shared,
		logger:  logger,
	}
}

func (c *Checker) IsNumberDuplicate(ctx context.Context, orderNumber string) bool {
	if orderNumber == "" {
		return false
	}
	return c.check(ctx, numberKind, c.numbers, orderNumber)
}

func (c *Checker) IsContentDuplicate(ctx context.Context, items []data.OrderItem) bool {
	if len(items) == 0 {
		return false
	}
	return c.check(ctx, hashKind, c.hashes, ContentHash(items))
}

func (c *Checker) check(ctx context.Context, kind string, buffer Buffer, key string) bool {
	if buffer.Contains(key) {
		c.logger.InfoCtx(ctx, "duplicate detected in buffer", zap.String("kind", kind))
		return true
	}

	seen, err := c.shared.Contains(ctx, kind, key)
	if err != nil {
		// A degraded shared tier must not block intake; the buffer still
		// covers recent traffic.
		c.logger.ErrorCtx(ctx, "shared duplicate cache check failed",
			zap.String("kind", kind), zap.Error(err))
	}
	if seen {
		buffer.Add(key)
		c.logger.InfoCtx(ctx, "duplicate detected in shared cache", zap.String("kind", kind))
		return true
	}

	buffer.Add(key)
	if err := c.shared.Add(ctx, kind, key); err != nil {
		c.logger.ErrorCtx(ctx, "shared duplicate cache mark failed",
			zap.String("kind", kind), zap.Error(err))
	}
	return false
}

// ContentHash fingerprints an order by its items only: product id and
// quantity, sorted by product id. Prices are deliberately excluded so a
// re-submission with updated pricing still counts as the same order.
func ContentHash(items []data.OrderItem) string {
	keys := make([]string, len(items))
	for i, item := range items {
		keys[i] = fmt.Sprintf("%s:%d;", item.ProductID, item.Quantity)
	}
	sort.Strings(keys)

	digest := sha256.Sum256([]byte(strings.Join(keys, "")))
	return hex.EncodeToString(digest[:])
}
