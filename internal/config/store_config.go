package config

const (
	databaseURLVar = "DB_CONNECTION_STRING"
	redisURLVar    = "REDIS_URL"

	// MemoryDatabaseURL selects the in-process user store
	MemoryDatabaseURL = "memory://"
)

type Store struct{}

var _ StoreConfig = Store{}

// GetDatabaseURL selects the credential store: memory://, postgres://... or sqlite://path
func (Store) GetDatabaseURL() string {
	return GetEnv(databaseURLVar, MemoryDatabaseURL)
}

// GetRedisURL is optional. When set, sessions and login attempt counters are kept in Redis.
func (Store) GetRedisURL() string {
	return GetEnv(redisURLVar, "")
}
