package config

import (
	"time"

	"github.com/spf13/viper"

	"kurodrive/internal/blob/s3"
	"kurodrive/internal/repository/badgerstore"
	"kurodrive/internal/service"
)

// setDefaults регистрирует каждый ключ. Без этого AutomaticEnv не видит
// переменные окружения для ключей, которых нет в файле.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":2525")
	v.SetDefault("server.request_timeout", 5*time.Minute)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.max_upload_size", 512<<20)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "kurodrive")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.connect_attempts", 5)
	v.SetDefault("database.connect_delay", 5*time.Second)

	v.SetDefault("metadata.type", "postgres")
	v.SetDefault("metadata.cascade_batch", service.DefaultCascadeBatch)
	v.SetDefault("metadata.badger.path", "")
	v.SetDefault("metadata.badger.search_scan_limit", badgerstore.DefaultSearchScanLimit)

	v.SetDefault("blob.type", "s3")
	v.SetDefault("blob.policy", "best_effort")
	v.SetDefault("blob.workers", 8)
	v.SetDefault("blob.s3.endpoint", s3.DefaultEndpoint)
	v.SetDefault("blob.s3.region", s3.DefaultRegion)
	v.SetDefault("blob.s3.bucket", "")
	v.SetDefault("blob.s3.access_key_id", "")
	v.SetDefault("blob.s3.secret_access_key", "")
	v.SetDefault("blob.s3.key_prefix", "")
	v.SetDefault("blob.s3.use_path_style", false)
	v.SetDefault("blob.s3.part_size", s3.DefaultPartSize)
	v.SetDefault("blob.localfs.root", "./data/blobs")

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("quota.default_limit", 500<<20)

	v.SetDefault("share.bcrypt_cost", 10)
	v.SetDefault("share.purge_interval", time.Hour)

	v.SetDefault("search.max_results", 100)

	v.SetDefault("activity.buffer", 1024)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("metrics.enabled", true)
}
