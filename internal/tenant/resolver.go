// Package tenant maps the request host to a Store row. Stores carry the
// per-tenant gateway credentials, so every request must resolve its tenant
// before touching the payment provider.
package tenant

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/uptrace/bun"

	"github.com/forfit/storefront/internal/logger"
	"github.com/forfit/storefront/internal/models"
	"github.com/forfit/storefront/internal/utils"
)

var ErrStoreNotFound = errors.New("store not found")

type contextKey string

const storeKey contextKey = "tenant_store"

type Resolver struct {
	db     bun.IDB
	cache  *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

func NewResolver(db bun.IDB, cache *redis.Client, ttl time.Duration, log *logger.Logger) *Resolver {
	return &Resolver{db: db, cache: cache, ttl: ttl, logger: log}
}

// SubdomainFromHost extracts the first label of the host, ignoring any port.
// "cascavel.forfit.app:8080" resolves to "cascavel".
func SubdomainFromHost(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	parts := strings.Split(host, ".")
	if len(parts) < 2 {
		return ""
	}
	return strings.ToLower(parts[0])
}

// Resolve loads the store for a subdomain, consulting the redis cache first.
// Cache misses fall through to the database and repopulate the cache.
func (r *Resolver) Resolve(ctx context.Context, subdomain string) (*models.Store, error) {
	if subdomain == "" {
		return nil, ErrStoreNotFound
	}

	cacheKey := "tenant:" + subdomain
	if r.cache != nil {
		if raw, err := r.cache.Get(ctx, cacheKey).Result(); err == nil {
			var store models.Store
			if err := json.Unmarshal([]byte(raw), &store); err == nil {
				return &store, nil
			}
		}
	}

	var store models.Store
	err := r.db.NewSelect().
		Model(&store).
		Where("subdomain = ?", subdomain).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStoreNotFound
	}
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if raw, err := json.Marshal(&store); err == nil {
			if err := r.cache.Set(ctx, cacheKey, raw, r.ttl).Err(); err != nil {
				r.logger.Warn("TENANT", fmt.Sprintf("failed to cache store %s: %v", subdomain, err))
			}
		}
	}

	return &store, nil
}

// Middleware resolves the tenant for every request and rejects unknown hosts.
// An X-Store header overrides the host subdomain for local development.
func (r *Resolver) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			subdomain := strings.ToLower(strings.TrimSpace(req.Header.Get("X-Store")))
			if subdomain == "" {
				subdomain = SubdomainFromHost(req.Host)
			}

			store, err := r.Resolve(req.Context(), subdomain)
			if err != nil {
				if errors.Is(err, ErrStoreNotFound) {
					r.logger.LogSecurity("TENANT", fmt.Sprintf("unknown store for host %q", req.Host))
					utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("unknown store", "store_not_found"))
					return
				}
				r.logger.Error("TENANT", fmt.Sprintf("resolve %q: %v", subdomain, err))
				utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("tenant resolution failed", err.Error()))
				return
			}

			ctx := context.WithValue(req.Context(), storeKey, store)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

// FromContext returns the store resolved by Middleware, or nil.
func FromContext(ctx context.Context) *models.Store {
	if store, ok := ctx.Value(storeKey).(*models.Store); ok {
		return store
	}
	return nil
}
