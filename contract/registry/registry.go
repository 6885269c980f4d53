// Package registry provides the default in-memory contract registry used
// by the deploy engine.
package registry

import (
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	contractBase "github.com/prismchain/prism/contract/base"
	lbase "github.com/prismchain/prism/ledger/base"
)

// Loader materializes a contract instance for an address, typically by
// loading its code directory
type Loader func(addr lbase.Address) (contractBase.Contract, error)

// CachedRegistry keeps loaded contract instances in an expiring cache and
// tracks which addresses already own a contract database.
type CachedRegistry struct {
	loader    Loader
	instances *cache.Cache
	databases *cache.Cache
}

func NewCachedRegistry(loader Loader, cfg *contractBase.ContractConfig) (*CachedRegistry, error) {
	if loader == nil {
		return nil, fmt.Errorf("create contract registry failed because loader is nil")
	}
	if cfg == nil {
		cfg = contractBase.DefaultContractConfig()
	}

	expire := cache.NoExpiration
	if cfg.CacheExpired > 0 {
		expire = time.Duration(cfg.CacheExpired) * time.Second
	}
	gcInterval := time.Duration(cfg.CacheGCInterval) * time.Second

	return &CachedRegistry{
		loader:    loader,
		instances: cache.New(expire, gcInterval),
		databases: cache.New(cache.NoExpiration, cache.NoExpiration),
	}, nil
}

// GetContract returns the instance mapped to the address, loading and
// caching it on a miss. Loading an instance creates its database.
func (t *CachedRegistry) GetContract(addr lbase.Address) (contractBase.Contract, error) {
	key := addr.Hex()
	if value, ok := t.instances.Get(key); ok {
		return value.(contractBase.Contract), nil
	}

	instance, err := t.loader(addr)
	if err != nil {
		return nil, fmt.Errorf("load contract failed.addr:%s,err:%v", addr, err)
	}
	t.instances.SetDefault(key, instance)
	t.databases.Set(key, struct{}{}, cache.NoExpiration)
	return instance, nil
}

// DeleteContract drops the in-memory instance only, the database marker
// survives so a re-install does not run the install hook again
func (t *CachedRegistry) DeleteContract(addr lbase.Address) {
	t.instances.Delete(addr.Hex())
}

// HasDB reports whether the address already owns a contract database
func (t *CachedRegistry) HasDB(addr lbase.Address) bool {
	_, ok := t.databases.Get(addr.Hex())
	return ok
}
