package s3store

import (
	"regexp"
	"sort"
	"strings"

	"github.com/koustreak/contentstore/internal/errs"
)

const (
	DefaultURLScheme = "http"
	DefaultRegion    = "us-east-1"
	DefaultProvider  = "minio"

	defaultDomain = "s3.amazonaws.com"
)

// regions maps each supported region to its service host.
var regions = map[string]string{
	"us-east-1":      "s3.amazonaws.com",
	"us-west-1":      "s3-us-west-1.amazonaws.com",
	"us-west-2":      "s3-us-west-2.amazonaws.com",
	"ap-northeast-1": "s3-ap-northeast-1.amazonaws.com",
	"ap-southeast-1": "s3-ap-southeast-1.amazonaws.com",
	"ap-southeast-2": "s3-ap-southeast-2.amazonaws.com",
	"eu-west-1":      "s3-eu-west-1.amazonaws.com",
	"eu-central-1":   "s3-eu-central-1.amazonaws.com",
	"sa-east-1":      "s3-sa-east-1.amazonaws.com",
}

// subdomainPattern matches bucket names usable as a DNS label in
// virtual-hosted URLs.
var subdomainPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]+[a-z0-9]$`)

// DefaultStorageHeaders are sent with every object unless Config says otherwise.
func DefaultStorageHeaders() map[string]string {
	return map[string]string{"x-amz-acl": "public-read"}
}

// Config holds the settings of an S3 data store.
type Config struct {
	BucketName      string `yaml:"bucket_name"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`

	// Region is the bucket region. Empty means us-east-1.
	Region string `yaml:"region"`

	// StorageHeaders are sent with every write. nil means
	// DefaultStorageHeaders; an empty map sends none.
	StorageHeaders map[string]string `yaml:"storage_headers"`

	// URLScheme and URLHost shape the URLs returned by URLFor.
	URLScheme string `yaml:"url_scheme"`
	URLHost   string `yaml:"url_host"`

	// UseIAMProfile takes credentials from the instance profile, making the
	// key pair optional.
	UseIAMProfile bool `yaml:"use_iam_profile"`

	// RootPath prefixes every storage key. It never appears in uids.
	RootPath string `yaml:"root_path"`

	// Provider selects the filestore backend client ("minio", "aws", "memory").
	Provider string `yaml:"provider"`

	// BackendOptions are passed verbatim to the backend client constructor.
	BackendOptions map[string]any `yaml:"backend_options"`

	// SyncClockOnInit compares the local clock with the service's when the
	// client is built. The clock is not adjusted: a skew too large for
	// request signing makes the client build, and so the operation, fail.
	// nil means true.
	SyncClockOnInit *bool `yaml:"sync_clock_on_init"`

	// Metrics registers store metrics with the default Prometheus registry
	// when the store is opened through the datastore registry.
	Metrics bool `yaml:"metrics"`
}

// ApplyDefaults fills in zero-valued fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.StorageHeaders == nil {
		c.StorageHeaders = DefaultStorageHeaders()
	}
	if c.URLScheme == "" {
		c.URLScheme = DefaultURLScheme
	}
	if c.Provider == "" {
		c.Provider = DefaultProvider
	}
	if c.SyncClockOnInit == nil {
		sync := true
		c.SyncClockOnInit = &sync
	}
}

func (c *Config) syncClock() bool {
	return c.SyncClockOnInit == nil || *c.SyncClockOnInit
}

// missingField returns the first required setting that is empty, or "".
func (c *Config) missingField() string {
	if c.BucketName == "" {
		return "bucket_name"
	}
	if c.UseIAMProfile {
		return ""
	}
	if c.AccessKeyID == "" {
		return "access_key_id"
	}
	if c.SecretAccessKey == "" {
		return "secret_access_key"
	}
	return ""
}

// Domain returns the service host for region. An empty region means
// DefaultRegion.
func Domain(region string) (string, error) {
	if region == "" {
		region = DefaultRegion
	}
	host, ok := regions[region]
	if !ok {
		return "", errs.Newf(errs.ErrKindInvalidInput, "invalid region %s - should be one of %s",
			region, strings.Join(Regions(), ", "))
	}
	return host, nil
}

// Regions returns the supported region codes, sorted.
func Regions() []string {
	out := make([]string, 0, len(regions))
	for r := range regions {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
