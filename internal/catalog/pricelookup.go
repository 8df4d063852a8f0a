package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tidebill/tidebill/internal/billing"
)

// priceTTL bounds staleness after a direct DB change. Writes through the
// service invalidate eagerly, so this is a backstop.
const priceTTL = 5 * time.Minute

type cachedRef struct {
	Found bool                `json:"found"`
	Ref   *billing.CatalogRef `json:"ref,omitempty"`
}

// PriceLookup resolves variation prices through a redis cache. A missing
// variation is a valid cached answer, not an error: callers get (nil, nil)
// and degrade the line instead of failing the document.
type PriceLookup struct {
	repo   Repository
	cache  *redis.Client
	logger *slog.Logger
}

// NewPriceLookup wires the cache-backed lookup. cache may be nil, in which
// case every call hits the database.
func NewPriceLookup(repo Repository, cache *redis.Client, logger *slog.Logger) *PriceLookup {
	return &PriceLookup{repo: repo, cache: cache, logger: logger}
}

// Variation returns the canonical catalog record for the user's variation, or
// (nil, nil) when the reference does not resolve.
func (p *PriceLookup) Variation(ctx context.Context, userID, variationID int64) (*billing.CatalogRef, error) {
	key := priceKey(userID, variationID)

	if p.cache != nil {
		raw, err := p.cache.Get(ctx, key).Result()
		switch {
		case err == nil:
			var entry cachedRef
			if err := json.Unmarshal([]byte(raw), &entry); err == nil {
				if !entry.Found {
					return nil, nil
				}
				return entry.Ref, nil
			}
			// Corrupt entry, fall through to the database.
		case !errors.Is(err, redis.Nil):
			p.logger.Warn("price cache read failed", slog.String("key", key), slog.Any("error", err))
		}
	}

	ref, err := p.repo.VariationRef(ctx, userID, variationID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("variation lookup: %w", err)
	}

	entry := cachedRef{Found: ref != nil, Ref: ref}
	if p.cache != nil {
		if raw, err := json.Marshal(entry); err == nil {
			if err := p.cache.Set(ctx, key, raw, priceTTL).Err(); err != nil {
				p.logger.Warn("price cache write failed", slog.String("key", key), slog.Any("error", err))
			}
		}
	}
	return ref, nil
}

// Invalidate drops the cached price for one variation.
func (p *PriceLookup) Invalidate(ctx context.Context, userID, variationID int64) {
	if p.cache == nil {
		return
	}
	key := priceKey(userID, variationID)
	if err := p.cache.Del(ctx, key).Err(); err != nil {
		p.logger.Warn("price cache invalidation failed", slog.String("key", key), slog.Any("error", err))
	}
}

func priceKey(userID, variationID int64) string {
	return fmt.Sprintf("catalog:price:%d:%d", userID, variationID)
}
