// Package cache stores resolved user gene sets in Redis.
//
// Resolving a user gene set costs one upstream query, and the same id is
// resolved again for every export a user triggers from a results page. The
// manager keeps the normalized gene list under a deterministic key with a
// fixed TTL.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient, 24*time.Hour)
//
//	genes, err := manager.GetGenes(ctx, id)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// resolve upstream, then
//		_ = manager.SetGenes(ctx, id, genes)
//	}
//
// # Metrics
//
//   - enrich_cache_hits_total - Cache hits
//   - enrich_cache_misses_total - Cache misses (absent or expired entries)
//   - enrich_cache_errors_total{operation} - Redis or decode failures
//
// Entries are immutable: a user gene set never changes once submitted, so
// there is no revalidation.
package cache
