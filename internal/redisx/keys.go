package redisx

import "time"

const (
	// Query cache: query:{name} -> JSON of the cached result
	KeyQuery = "query:%s"

	// Dedup confirmed-payment events: dedup:{service}:{provider}:{provider_event_id}
	KeyDedup = "dedup:%s:%s:%s"
)

var (
	TTLDedup = 48 * time.Hour
)
