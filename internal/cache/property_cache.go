package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/models"
)

// IPropertyCache caches the public (anonymous) view of a property.
type IPropertyCache interface {
	Get(ctx context.Context, id primitive.ObjectID) (*models.Property, bool)
	Set(ctx context.Context, p *models.Property)
	Invalidate(ctx context.Context, id primitive.ObjectID)
}

type propertyCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPropertyCache returns a Redis backed cache. A nil client or zero ttl disables caching.
func NewPropertyCache(rdb *redis.Client, ttl time.Duration) IPropertyCache {
	return &propertyCache{rdb: rdb, ttl: ttl}
}

func propertyKey(id primitive.ObjectID) string {
	return fmt.Sprintf("property:public:%s", id.Hex())
}

func (c *propertyCache) enabled() bool {
	return c.rdb != nil && c.ttl > 0
}

// Get never fails; Redis errors count as a miss.
func (c *propertyCache) Get(ctx context.Context, id primitive.ObjectID) (*models.Property, bool) {
	if !c.enabled() {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, propertyKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("WARN: property cache read %s: %v", id.Hex(), err)
		}
		return nil, false
	}
	var p models.Property
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Printf("WARN: property cache decode %s: %v", id.Hex(), err)
		return nil, false
	}
	return &p, true
}

func (c *propertyCache) Set(ctx context.Context, p *models.Property) {
	if !c.enabled() {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		log.Printf("WARN: property cache encode %s: %v", p.ID.Hex(), err)
		return
	}
	if err := c.rdb.Set(ctx, propertyKey(p.ID), raw, c.ttl).Err(); err != nil {
		log.Printf("WARN: property cache write %s: %v", p.ID.Hex(), err)
	}
}

func (c *propertyCache) Invalidate(ctx context.Context, id primitive.ObjectID) {
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, propertyKey(id)).Err(); err != nil {
		log.Printf("WARN: property cache invalidate %s: %v", id.Hex(), err)
	}
}
