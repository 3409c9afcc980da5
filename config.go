package indiserver

import "time"

// BlobPolicy mirrors the wire enableBLOB values: Never, Also, Only.
type BlobPolicy string

const (
	BlobNever = BlobPolicy("Never")
	BlobAlso  = BlobPolicy("Also")
	BlobOnly  = BlobPolicy("Only")
)

func (p BlobPolicy) valid() bool {
	return p == BlobNever || p == BlobAlso || p == BlobOnly
}

// RemoteConfig describes one upstream INDI server this router bridges to.
type RemoteConfig struct {
	Host       string
	Port       int
	BlobPolicy BlobPolicy
	DebugXML   bool
}

// ExternalConfig describes one external (subprocess) driver this router hosts.
type ExternalConfig struct {
	ProgramPath string
	Args        []string
	DebugXML    bool
}

// Options configures a Router. Zero-value fields are filled in with
// defaults by normalize(); an out-of-range MaxConnections is a fatal
// configuration error surfaced by NewRouter.
type Options struct {
	// Host is the listen address. Default "localhost".
	Host string

	// Port is the listen port. Default 7624.
	Port int

	// MaxConnections bounds concurrent client slots, 1..10. Default 5.
	MaxConnections int

	// DriverData is opaque, per-driver data passed through to user code;
	// the framework never inspects it.
	DriverData map[string]interface{}

	Remotes   []RemoteConfig
	Externals []ExternalConfig

	// QueueCapacity bounds every inter-component channel (suggested 4-6).
	QueueCapacity int

	// EnqueueTimeout is the per-attempt timeout used by the
	// timeout-and-retry enqueue pattern (suggested ~500ms).
	EnqueueTimeout time.Duration

	// ClientIdleTimeout is the per-client keepalive idle window (default 15s).
	ClientIdleTimeout time.Duration

	// RemoteIdleTimeout / RemoteResponseTimeout are the remote-connection
	// liveness windows (defaults 20s / 40s).
	RemoteIdleTimeout     time.Duration
	RemoteResponseTimeout time.Duration

	// RemoteReconnectBackoff is the delay between reconnect attempts (default 5s).
	RemoteReconnectBackoff time.Duration

	// MinSnoopTimeout floors a driver's per-(device,vector) snoop timeout (default 5s).
	MinSnoopTimeout time.Duration
}

const (
	defaultHost                   = "localhost"
	defaultPort                   = 7624
	defaultMaxConnections         = 5
	defaultQueueCapacity          = 6
	defaultEnqueueTimeout         = 500 * time.Millisecond
	defaultClientIdleTimeout      = 15 * time.Second
	defaultRemoteIdleTimeout      = 20 * time.Second
	defaultRemoteResponseTimeout  = 40 * time.Second
	defaultRemoteReconnectBackoff = 5 * time.Second
	defaultMinSnoopTimeout        = 5 * time.Second
)

// normalize fills in zero-value fields with defaults and validates the
// caller-supplied options. It returns an *InvalidArgumentError for an
// out-of-range MaxConnections or an invalid remote BLOB policy.
func (o Options) normalize() (Options, error) {
	if o.Host == "" {
		o.Host = defaultHost
	}
	if o.Port == 0 {
		o.Port = defaultPort
	}
	if o.MaxConnections == 0 {
		o.MaxConnections = defaultMaxConnections
	}
	if o.MaxConnections < 1 || o.MaxConnections > 10 {
		return o, newInvalidArgumentError("MaxConnections", "must be between 1 and 10")
	}
	if o.QueueCapacity == 0 {
		o.QueueCapacity = defaultQueueCapacity
	}
	if o.EnqueueTimeout == 0 {
		o.EnqueueTimeout = defaultEnqueueTimeout
	}
	if o.ClientIdleTimeout == 0 {
		o.ClientIdleTimeout = defaultClientIdleTimeout
	}
	if o.RemoteIdleTimeout == 0 {
		o.RemoteIdleTimeout = defaultRemoteIdleTimeout
	}
	if o.RemoteResponseTimeout == 0 {
		o.RemoteResponseTimeout = defaultRemoteResponseTimeout
	}
	if o.RemoteReconnectBackoff == 0 {
		o.RemoteReconnectBackoff = defaultRemoteReconnectBackoff
	}
	if o.MinSnoopTimeout == 0 {
		o.MinSnoopTimeout = defaultMinSnoopTimeout
	}
	for _, r := range o.Remotes {
		if r.BlobPolicy != "" && !r.BlobPolicy.valid() {
			return o, newInvalidArgumentError("RemoteConfig.BlobPolicy", "must be one of Never, Also, Only")
		}
	}
	return o, nil
}
