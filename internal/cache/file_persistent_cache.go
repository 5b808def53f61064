package cache

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// FilePersistentCache is a file-backed cache. Values must be
// JSON-serializable; callers reading a loaded entry get back the
// decoded JSON form, not the original Go type.
type FilePersistentCache struct {
	store    map[string]persistedItem
	mutex    sync.RWMutex
	ttl      time.Duration
	filePath string
	logger   Logger
}

type persistedItem struct {
	Value      interface{} `json:"value"`
	Expiration int64       `json:"expiration"`
}

// NewFilePersistentCache creates a persistent cache backed by filePath.
func NewFilePersistentCache(defaultTTL time.Duration, filePath string, logger Logger) *FilePersistentCache {
	c := &FilePersistentCache{
		store:    make(map[string]persistedItem),
		ttl:      defaultTTL,
		filePath: filePath,
		logger:   logger,
	}
	c.loadFromFile()
	return c
}

// loadFromFile loads cache items from the file.
func (c *FilePersistentCache) loadFromFile() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	file, err := os.Open(c.filePath)
	if err != nil {
		return
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&c.store); err != nil && c.logger != nil {
		c.logger.Error("Failed to decode persistent cache", map[string]interface{}{"path": c.filePath, "error": err.Error()})
	}
}

// saveToFileLocked writes the store to disk. The caller must hold the
// write lock.
func (c *FilePersistentCache) saveToFileLocked() {
	file, err := os.Create(c.filePath)
	if err != nil {
		if c.logger != nil {
			c.logger.Error("Failed to write persistent cache", map[string]interface{}{"path": c.filePath, "error": err.Error()})
		}
		return
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	_ = encoder.Encode(c.store)
}

// Get retrieves an item from the cache.
func (c *FilePersistentCache) Get(ctx context.Context, key string) (interface{}, error) {
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return nil, err
	}

	c.mutex.RLock()
	item, found := c.store[key]
	c.mutex.RUnlock()

	if !found {
		return nil, errbuilder.NotFoundErr(errbuilder.GenericErr("cache item not found", nil))
	}
	if time.Now().UnixNano() > item.Expiration {
		if c.logger != nil {
			c.logger.Info("Persistent cache item expired", map[string]interface{}{"key": key})
		}
		return nil, errbuilder.NotFoundErr(errbuilder.GenericErr("cache item expired", nil))
	}
	return item.Value, nil
}

// Set adds or updates an item and persists the store.
func (c *FilePersistentCache) Set(ctx context.Context, key string, value interface{}) error {
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return err
	}

	c.mutex.Lock()
	c.store[key] = persistedItem{
		Value:      value,
		Expiration: time.Now().Add(c.ttl).UnixNano(),
	}
	c.pruneLocked()
	c.saveToFileLocked()
	c.mutex.Unlock()

	if c.logger != nil {
		c.logger.Info("Persistent cache item set", map[string]interface{}{"key": key})
	}
	return nil
}

// pruneLocked drops expired entries. The caller must hold the write
// lock.
func (c *FilePersistentCache) pruneLocked() {
	now := time.Now().UnixNano()
	for key, item := range c.store {
		if now > item.Expiration {
			delete(c.store, key)
		}
	}
}
