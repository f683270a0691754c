package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
)

const (
	CacheKeyPrefixDedup = "kill:"
)

const (
	DefaultKillmailTopic = "killmails"
	DefaultDeliveryTopic = "deliveries"
)

const (
	DefaultMongoDBName = "killrelay"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)

const (
	FallbackAllow = "allow"
	FallbackDeny  = "deny"
)

const (
	StoreTypeMemory   = "memory"
	StoreTypeRedis    = "redis"
	StoreTypePostgres = "postgres"
	StoreTypeMongoDB  = "mongodb"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)
