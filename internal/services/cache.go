package services

import (
	"context"
	"strings"
	"time"

	"booking-system/monitoring"

	"github.com/redis/go-redis/v9"
)

// ResponseCache is the injected read-through cache for catalog-style GET
// routes. Slot and booking routes must never be cached: capacity data served
// stale would contradict the coordinator, so those prefixes are hard-excluded
// regardless of caller configuration. Capacity bounding is delegated to the
// Redis eviction policy rather than tracked in-process.
type ResponseCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
	routeTTLs  map[string]time.Duration
}

// prefixes that may never be served from cache.
var uncacheable = []string{"/api/v1/slots", "/api/v1/bookings"}

func NewResponseCache(redisClient *redis.Client, defaultTTL time.Duration) *ResponseCache {
	return &ResponseCache{
		redis:      redisClient,
		defaultTTL: defaultTTL,
		routeTTLs:  map[string]time.Duration{},
	}
}

// SetRouteTTL overrides the TTL for one route prefix.
func (c *ResponseCache) SetRouteTTL(route string, ttl time.Duration) {
	c.routeTTLs[route] = ttl
}

func (c *ResponseCache) cacheable(route string) bool {
	for _, p := range uncacheable {
		if strings.HasPrefix(route, p) {
			return false
		}
	}
	return true
}

func (c *ResponseCache) ttlFor(route string) time.Duration {
	for prefix, ttl := range c.routeTTLs {
		if strings.HasPrefix(route, prefix) {
			return ttl
		}
	}
	return c.defaultTTL
}

func cacheKey(route string) string {
	return "respcache:" + route
}

// Get returns the cached body for a route, or ("", false) on miss or when the
// route is excluded from caching.
func (c *ResponseCache) Get(ctx context.Context, route string) (string, bool) {
	if !c.cacheable(route) {
		return "", false
	}
	body, err := c.redis.Get(ctx, cacheKey(route)).Result()
	if err != nil {
		monitoring.TrackCache("miss")
		return "", false
	}
	monitoring.TrackCache("hit")
	return body, true
}

// Set stores a response body under the route's TTL. Excluded routes are
// silently skipped so callers don't need to know the exclusion list.
func (c *ResponseCache) Set(ctx context.Context, route, body string) {
	if !c.cacheable(route) {
		return
	}
	c.redis.Set(ctx, cacheKey(route), body, c.ttlFor(route))
}

// Invalidate drops every cached response under the route prefix. Wired to the
// record hooks on catalog mutations.
func (c *ResponseCache) Invalidate(ctx context.Context, routePrefix string) {
	iter := c.redis.Scan(ctx, 0, cacheKey(routePrefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		c.redis.Del(ctx, iter.Val())
	}
}
