package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/atomstore/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   database DSN
//	-q string   database dialect ("pgx" or "sqlite")
//	-k string   content backend ("file", "s3", or "db")
//	-f string   content root directory (file backend)
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-m string   metrics bind address (empty disables the endpoint)
//	-l int      replication latency window, milliseconds
//	-n int      number of stripe buckets (0 disables stripe tagging)
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes
//     using flagx.FilterArgs, avoiding collisions with other components.
//   - The latency flag is accepted as an integer in milliseconds and then
//     converted to a time.Duration value.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-q", "-k", "-f", "-u", "-p", "-b", "-g", "-e", "-m", "-l", "-n"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.DatabaseDialect, "q", config.DatabaseDialect, "database dialect")
	fs.StringVar(&config.ContentBackend, "k", config.ContentBackend, "content backend")
	fs.StringVar(&config.ContentRoot, "f", config.ContentRoot, "content root directory")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.MetricsAddr, "m", config.MetricsAddr, "metrics bind address")

	latencyMs := fs.Int("l", int(config.ReplicationLatency.Milliseconds()), "replication latency window (in milliseconds)")
	fs.IntVar(&config.NumStripes, "n", config.NumStripes, "number of stripe buckets")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.ReplicationLatency = time.Duration(*latencyMs) * time.Millisecond
}
