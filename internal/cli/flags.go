package cli

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/vk/burstci/internal/app"
)

// commonFlags are shared by every command.
type commonFlags struct {
	logFormat string
	logLevel  string
}

// AddFlags registers the flags on fs.
func (f *commonFlags) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.logFormat, "log-format", "text", "log output format: 'text' or 'json'")
	fs.StringVar(&f.logLevel, "log-level", "info", "logging level: 'debug', 'info', 'warn' or 'error'")
}

func (f *commonFlags) config(paths []string) app.Config {
	return app.Config{Paths: paths, LogFormat: f.logFormat, LogLevel: f.logLevel}
}

// runFlags configure a pipeline run.
type runFlags struct {
	event        string
	ref          string
	baseRef      string
	eventPayload string

	workers     int
	needsPolicy string
	timeout     time.Duration
	workDir     string

	cache       string
	noCache     bool
	compression string

	secretsFile     string
	secretsIdentity string

	report          string
	color           bool
	healthcheckPort int
}

// AddFlags registers the flags on fs.
func (f *runFlags) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.event, "event", "", "event kind, e.g. 'push' or 'pull_request' (default from payload or environment)")
	fs.StringVar(&f.ref, "ref", "", "triggering ref, e.g. 'refs/heads/main'")
	fs.StringVar(&f.baseRef, "base-ref", "", "pull request target branch")
	fs.StringVar(&f.eventPayload, "event-payload", "", "path to a webhook JSON payload")

	fs.IntVarP(&f.workers, "workers", "w", 0, "concurrent job instances; 0 runs every ready instance at once")
	fs.StringVar(&f.needsPolicy, "needs-policy", "all", "default needs policy: 'all' or 'any'")
	fs.DurationVar(&f.timeout, "timeout", 0, "default step timeout; 0 is unbounded")
	fs.StringVarP(&f.workDir, "workdir", "C", "", "directory jobs run in (default: current directory)")

	fs.StringVar(&f.cache, "cache", "", "cache store: memory://, file:///dir or sqlite:///file.db (default .burstci/cache)")
	fs.BoolVar(&f.noCache, "no-cache", false, "disable cache restore and save")
	fs.StringVar(&f.compression, "cache-compression", "zstd", "cache compression: 'zstd', 'lz4' or 'none'")

	fs.StringVar(&f.secretsFile, "secrets-file", "", "age-encrypted KEY=VALUE file with deploy secrets")
	fs.StringVar(&f.secretsIdentity, "secrets-identity", "", "age identity file for --secrets-file")

	fs.StringVarP(&f.report, "report", "o", "", "write the run report to a .json, .yaml or .cbor file")
	fs.BoolVar(&f.color, "color", false, "colorize the run summary")
	fs.IntVar(&f.healthcheckPort, "healthcheck-port", 0, "port for the HTTP health and status server; 0 is disabled")
}

func (f *runFlags) config(base app.Config) app.Config {
	base.Event = f.event
	base.Ref = f.ref
	base.BaseRef = f.baseRef
	base.EventPayload = f.eventPayload
	base.Workers = f.workers
	base.NeedsPolicy = f.needsPolicy
	base.DefaultTimeout = f.timeout
	base.WorkDir = f.workDir
	base.CacheLocation = f.cache
	base.NoCache = f.noCache
	base.Compression = f.compression
	base.SecretsFile = f.secretsFile
	base.SecretsIdentity = f.secretsIdentity
	base.ReportPath = f.report
	base.Color = f.color
	base.HealthcheckPort = f.healthcheckPort
	return base
}
