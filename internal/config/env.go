package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides overlays GRAPHSYNC_* variables on cfg. Malformed
// numeric, boolean and duration values fail fast.
func applyEnvOverrides(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	str("GRAPHSYNC_STORAGE_DRIVER", &cfg.Storage.Driver)
	str("GRAPHSYNC_NAMESPACE", &cfg.Storage.Namespace)
	str("GRAPHSYNC_SQLITE_PATH", &cfg.Storage.SQLite.Path)
	str("GRAPHSYNC_POSTGRES_DSN", &cfg.Storage.Postgres.DSN)
	str("GRAPHSYNC_POSTGRES_HOST", &cfg.Storage.Postgres.Host)
	str("GRAPHSYNC_POSTGRES_USER", &cfg.Storage.Postgres.User)
	str("GRAPHSYNC_POSTGRES_PASSWORD", &cfg.Storage.Postgres.Password)
	str("GRAPHSYNC_POSTGRES_DB", &cfg.Storage.Postgres.Database)
	str("GRAPHSYNC_POSTGRES_SSLMODE", &cfg.Storage.Postgres.SSLMode)
	str("GRAPHSYNC_DYNAMODB_REGION", &cfg.Storage.DynamoDB.Region)
	str("GRAPHSYNC_DYNAMODB_ENDPOINT", &cfg.Storage.DynamoDB.Endpoint)
	str("GRAPHSYNC_DYNAMODB_TABLE_PREFIX", &cfg.Storage.DynamoDB.TablePrefix)
	str("GRAPHSYNC_BLOB_DRIVER", &cfg.Storage.Blob.Driver)
	str("GRAPHSYNC_BLOB_FS_ROOT", &cfg.Storage.Blob.Root)
	str("GRAPHSYNC_BLOB_S3_BUCKET", &cfg.Storage.Blob.Bucket)
	str("GRAPHSYNC_BLOB_S3_REGION", &cfg.Storage.Blob.Region)
	str("GRAPHSYNC_BLOB_S3_ENDPOINT", &cfg.Storage.Blob.Endpoint)
	str("GRAPHSYNC_HTTP_BACKEND_URL", &cfg.Storage.HTTP.URL)
	str("GRAPHSYNC_LISTEN", &cfg.Server.Listen)
	str("GRAPHSYNC_LOG_LEVEL", &cfg.Log.Level)
	str("GRAPHSYNC_LOG_FORMAT", &cfg.Log.Format)
	str("GRAPHSYNC_LOG_FILE", &cfg.Log.File)
	str("GRAPHSYNC_TRACE_FILE", &cfg.Metrics.TraceFile)

	if v := os.Getenv("GRAPHSYNC_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.Server.CORSOrigins = append(cfg.Server.CORSOrigins, o)
			}
		}
	}
	if err := envInt("GRAPHSYNC_POSTGRES_PORT", &cfg.Storage.Postgres.Port); err != nil {
		return err
	}
	if err := envInt("GRAPHSYNC_HTTP_BACKEND_RETRIES", &cfg.Storage.HTTP.RetryMax); err != nil {
		return err
	}
	if err := envDuration("GRAPHSYNC_HTTP_BACKEND_TIMEOUT", &cfg.Storage.HTTP.Timeout); err != nil {
		return err
	}
	if err := envDuration("GRAPHSYNC_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout); err != nil {
		return err
	}
	if err := envBool("GRAPHSYNC_BLOB_S3_PATH_STYLE", &cfg.Storage.Blob.PathStyle); err != nil {
		return err
	}
	return envBool("GRAPHSYNC_METRICS", &cfg.Metrics.Prometheus)
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	*dst = b
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	*dst = d
	return nil
}
