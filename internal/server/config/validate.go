package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Validate checks the whole configuration and reports every violation at
// once, so an operator fixing a broken deployment sees the full list instead
// of playing whack-a-mole one restart at a time.
func (c *Config) Validate() error {
	var problems []string

	switch c.DatabaseDialect {
	case "pgx", "postgres", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("unknown database dialect %q (want pgx or sqlite)", c.DatabaseDialect))
	}
	if c.DatabaseDSN == "" {
		problems = append(problems, "database DSN is empty")
	}

	switch c.ContentBackend {
	case ContentBackendFile:
		if c.ContentRoot == "" {
			problems = append(problems, "content backend is file but content root is empty")
		}
	case ContentBackendS3:
		if c.S3Bucket == "" {
			problems = append(problems, "content backend is s3 but bucket is empty")
		}
		if c.S3RootUser == "" || c.S3RootPassword == "" {
			problems = append(problems, "content backend is s3 but credentials are incomplete")
		}
	case ContentBackendDB:
	default:
		problems = append(problems, fmt.Sprintf("unknown content backend %q (want file, s3, or db)", c.ContentBackend))
	}

	if c.ReplicationLatency < 0 {
		problems = append(problems, "replication latency must not be negative")
	}

	for _, p := range c.HashIgnorePatterns {
		if _, err := regexp.Compile(p); err != nil {
			problems = append(problems, fmt.Sprintf("hash ignore pattern %q does not compile: %v", p, err))
		}
	}

	if c.NumStripes < 0 {
		problems = append(problems, "number of stripes must not be negative")
	}
	if c.NumStripes > 0 {
		if c.StripeScheme == "" {
			problems = append(problems, "stripe tagging is enabled but stripe scheme is empty")
		}
		if c.StripeRadix != 0 && (c.StripeRadix < 2 || c.StripeRadix > 36) {
			problems = append(problems, fmt.Sprintf("stripe radix %d out of range [2, 36]", c.StripeRadix))
		}
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
