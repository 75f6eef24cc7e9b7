// Package redis implements store.Store on Redis with go-redis/v9.
//
// Each job is one MessagePack-encoded string key. Sorted Sets index jobs
// by state (scored by due date) and by lock expiration, and a Set tracks
// every job ID for listings. Version-guarded writes run under WATCH on the
// job key, so a concurrent writer aborts the transaction and the write
// reports a conflict. Exclusive scope leases are keys with an absolute
// expiry taken with SET NX.
//
// The caller owns the client lifecycle:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis
