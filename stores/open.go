package stores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/oarkflow/squealx"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/oarkflow/evauthz"
	"github.com/oarkflow/evauthz/logger"
)

// Backend bundles the collaborators built from a Config. Org lookups go through
// the ristretto cache; with a Redis address the identity store, site membership
// and notifier move to Redis.
type Backend struct {
	DB           *squealx.DB
	SQLOrg       *SQLOrgStore
	Identity     evauthz.IdentityStore
	Org          evauthz.OrgStore
	Tenants      evauthz.TenantStore
	Transactions evauthz.TransactionStore
	Audit        *SQLAuditStore
	Notifier     evauthz.Notifier

	sqlDB *sql.DB
	redis *redis.Client
	cache *CachedOrgStore
}

// Open connects the configured databases and runs migrations.
func Open(ctx context.Context, cfg *evauthz.Config, l logger.Logger) (*Backend, error) {
	if l == nil {
		l = logger.NewNullLogger()
	}
	sqlDB, err := sql.Open("sqlite", cfg.SQLiteDSN)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if strings.Contains(cfg.SQLiteDSN, ":memory:") || strings.Contains(cfg.SQLiteDSN, "mode=memory") {
		// each pooled connection would get its own empty database
		sqlDB.SetMaxOpenConns(1)
	}
	db := squealx.NewDb(sqlDB, "sqlite", "evauthz")
	if err := Migrate(db); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	audit, err := NewSQLAuditStore(db)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	sqlOrg := NewSQLOrgStore(db)
	b := &Backend{
		DB:           db,
		SQLOrg:       sqlOrg,
		Identity:     NewSQLIdentityStore(db),
		Tenants:      sqlOrg,
		Transactions: sqlOrg,
		Audit:        audit,
		sqlDB:        sqlDB,
	}

	var org evauthz.OrgStore = sqlOrg
	if cfg.RedisAddr != "" {
		b.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := b.redis.Ping(ctx).Err(); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		b.Identity = NewRedisIdentityStore(b.redis)
		b.Notifier = NewRedisNotifier(b.redis, "")
		org = NewRedisSiteMembership(b.redis, sqlOrg)
		l.Info("redis collaborators enabled", "addr", cfg.RedisAddr)
	}
	b.cache, err = NewCachedOrgStore(org, CacheConfig{
		NumCounters: cfg.OrgCacheCounters,
		MaxCost:     cfg.OrgCacheMaxCost,
		TTL:         cfg.OrgCacheTTL,
	})
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.Org = b.cache
	return b, nil
}

// NewSessionGuard wires a resolver and guard over the backend's collaborators.
func (b *Backend) NewSessionGuard(cfg *evauthz.Config, authz *evauthz.Authorizer, l logger.Logger) *evauthz.SessionGuard {
	resolver := evauthz.NewTagResolver(b.Identity, b.Notifier, b.Audit,
		evauthz.WithPlaceholderDomain(cfg.PlaceholderDomain),
		evauthz.WithResolverLogger(l),
	)
	return evauthz.NewSessionGuard(resolver, b.Tenants, b.Org, authz, l)
}

// NewConnectorAuthorizer builds a connector calculator over the backend.
func (b *Backend) NewConnectorAuthorizer(authz *evauthz.Authorizer, l logger.Logger) *evauthz.ConnectorAuthorizer {
	return evauthz.NewConnectorAuthorizer(authz, b.Org, b.Transactions, evauthz.WithConnectorLogger(l))
}

func (b *Backend) Close() error {
	var errs []error
	if b.cache != nil {
		b.cache.Close()
	}
	if b.redis != nil {
		errs = append(errs, b.redis.Close())
	}
	if b.sqlDB != nil {
		errs = append(errs, b.sqlDB.Close())
	}
	return errors.Join(errs...)
}
