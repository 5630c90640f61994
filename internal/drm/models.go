package drm

// KeySystem identifies the content-protection scheme a controller negotiates.
// It is supplied once per controller and never changes afterwards.
type KeySystem string

const (
	// KeySystemWidevine is Google Widevine.
	KeySystemWidevine KeySystem = "com.widevine.alpha"
	// KeySystemPlayReady is Microsoft PlayReady.
	KeySystemPlayReady KeySystem = "com.microsoft.playready"
)

// Supported reports whether the key system is one this controller knows how
// to negotiate. Anything else fails negotiation synchronously.
func (k KeySystem) Supported() bool {
	return k == KeySystemWidevine || k == KeySystemPlayReady
}

// MediaCapability is a single (codec, robustness) pair requested during
// capability negotiation. Robustness defaults to "" when the caller has no
// preference.
type MediaCapability struct {
	ContentType string
	Robustness  string
}

// CapabilityConfig is one candidate configuration handed to the CDM access
// provider. It is derived from the codec lists on every negotiation attempt
// and never stored.
type CapabilityConfig struct {
	AudioCapabilities []MediaCapability
	VideoCapabilities []MediaCapability
}

// AccessOptions carries optional negotiation parameters.
type AccessOptions struct {
	AudioRobustness string
	VideoRobustness string
}

// ProtectionData is one protection-metadata entry discovered by the
// surrounding system (e.g. from a playlist or manifest). KeyFormat names the
// scheme the entry belongs to; URI carries the payload as an
// "<encoding>,<data>" pair.
type ProtectionData struct {
	KeyFormat string `json:"key_format"`
	URI       string `json:"uri"`
}

// InitDataTypeCenc is the initialization-data type used for all extracted
// init data, regardless of key system.
const InitDataTypeCenc = "cenc"

// Config holds the per-controller settings for license acquisition.
type Config struct {
	// KeySystem is the protection scheme this controller negotiates.
	KeySystem KeySystem

	// LicenseURLs maps each key system to its license-server endpoint.
	// A missing entry fails license requests at call time.
	LicenseURLs map[KeySystem]string

	// MaxRetries bounds consecutive failed license exchanges. When the
	// failure count exceeds it, the controller gives up with a fatal
	// error. Zero means DefaultMaxRetries.
	MaxRetries int

	// PrepareRequest, when set, may adjust the outgoing headers before
	// each license exchange.
	PrepareRequest func(headers map[string]string)

	// TransformResponse, when set, rewrites the license-server response
	// before it is fed into the session.
	TransformResponse func(resp []byte) ([]byte, error)
}

// DefaultMaxRetries is the retry bound used when Config.MaxRetries is unset.
const DefaultMaxRetries = 3

func (c Config) maxRetries() int {
	if c.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return c.MaxRetries
}
