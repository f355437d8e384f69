package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/atomstore/internal/flagx"
	"github.com/dmitrijs2005/atomstore/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "2s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its fields are copied into the
// runtime Config struct which uses time.Duration.
type JsonConfig struct {
	DatabaseDialect string `json:"database_dialect"`
	DatabaseDSN     string `json:"database_dsn"`

	ContentBackend string `json:"content_backend"`
	ContentRoot    string `json:"content_root"`
	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`

	MetricsAddr string `json:"metrics_addr"`

	ReplicationLatency   timex.Duration `json:"replication_latency"`
	SkipUnchangedContent *bool          `json:"skip_unchanged_content"`
	HashIgnorePatterns   []string       `json:"hash_ignore_patterns"`

	StripeScheme string `json:"stripe_scheme"`
	NumStripes   *int   `json:"num_stripes"`
	StripeRadix  *int   `json:"stripe_radix"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from the -c or -config command-line flags; when
// neither is set, no JSON file is loaded. An unreadable file or invalid
// JSON is a startup error and panics.
//
// Only fields present in the file override the current values; absent
// string fields stay at their defaults, and optional booleans/integers use
// pointer types to tell "absent" from "zero".
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	if c.DatabaseDialect != "" {
		config.DatabaseDialect = c.DatabaseDialect
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.ContentBackend != "" {
		config.ContentBackend = c.ContentBackend
	}
	if c.ContentRoot != "" {
		config.ContentRoot = c.ContentRoot
	}
	if c.S3RootUser != "" {
		config.S3RootUser = c.S3RootUser
	}
	if c.S3RootPassword != "" {
		config.S3RootPassword = c.S3RootPassword
	}
	if c.S3Bucket != "" {
		config.S3Bucket = c.S3Bucket
	}
	if c.S3Region != "" {
		config.S3Region = c.S3Region
	}
	if c.S3BaseEndpoint != "" {
		config.S3BaseEndpoint = c.S3BaseEndpoint
	}
	if c.MetricsAddr != "" {
		config.MetricsAddr = c.MetricsAddr
	}
	if c.ReplicationLatency.Duration != 0 {
		config.ReplicationLatency = c.ReplicationLatency.Duration
	}
	if c.SkipUnchangedContent != nil {
		config.SkipUnchangedContent = *c.SkipUnchangedContent
	}
	if c.HashIgnorePatterns != nil {
		config.HashIgnorePatterns = c.HashIgnorePatterns
	}
	if c.StripeScheme != "" {
		config.StripeScheme = c.StripeScheme
	}
	if c.NumStripes != nil {
		config.NumStripes = *c.NumStripes
	}
	if c.StripeRadix != nil {
		config.StripeRadix = *c.StripeRadix
	}
}
