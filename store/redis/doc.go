// Package redis implements store.Store on Redis. The queue partitions are
// native Redis structures: pending and the terminal partitions are LISTs,
// in-flight and scheduled jobs are sorted sets scored by lease deadline and
// due time, and each job record is a HASH. Every state transition runs as a
// single Lua script, so it is atomic with respect to concurrent dispatchers.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis
