package drm

import (
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"drm-orchestrator/internal/platform/metrics"

	"golang.org/x/text/encoding/unicode"
)

// playReadySOAPAction is attached to every PlayReady license request.
const playReadySOAPAction = "http://schemas.microsoft.com/DRM/2007/03/protocols/AcquireLicense"

// LicenseProtocol runs the license-acquisition exchange for a controller:
// challenge construction per key system, the network round trip, and the
// bounded retry policy. One instance exists per controller, so the retry
// counter is per-controller state.
type LicenseProtocol struct {
	cfg       Config
	store     SessionStore
	transport Transport
	log       *slog.Logger
	metrics   *metrics.Metrics

	retries int
}

// NewLicenseProtocol returns a protocol bound to the given store and
// transport. Metrics may be nil to disable metric recording.
func NewLicenseProtocol(cfg Config, store SessionStore, transport Transport, log *slog.Logger, m *metrics.Metrics) *LicenseProtocol {
	return &LicenseProtocol{cfg: cfg, store: store, transport: transport, log: log, metrics: m}
}

// RetryCount returns the number of consecutive failed exchanges so far.
func (p *LicenseProtocol) RetryCount() int { return p.retries }

// ResetRetries clears the failure counter, e.g. on teardown.
func (p *LicenseProtocol) ResetRetries() { p.retries = 0 }

// RequestLicense exchanges a session's outgoing message for a license.
// On success the response bytes are handed to onSuccess, which the caller
// uses to feed the session's key-update step. Failed round trips are retried
// with a freshly built challenge until the retry bound is exceeded.
func (p *LicenseProtocol) RequestLicense(ctx context.Context, message []byte, onSuccess func(response []byte) error) *KeySystemError {
	item, ok := p.store.Active()
	if !ok {
		return keySystemError(KindNoAccess, true, fmt.Errorf("license requested with no session item"))
	}

	url, ok := p.cfg.LicenseURLs[item.KeySystem]
	if !ok || url == "" {
		return keySystemError(KindLicenseRequestFailed, true,
			fmt.Errorf("no license server URL configured for key system %q", item.KeySystem))
	}

	for {
		// The whole request is rebuilt per attempt, headers and
		// challenge included.
		challenge, headers, err := buildChallenge(item.KeySystem, message)
		if err != nil {
			return keySystemError(KindLicenseRequestFailed, true, err)
		}
		if p.cfg.PrepareRequest != nil {
			p.cfg.PrepareRequest(headers)
		}

		if p.metrics != nil {
			p.metrics.IncLicenseRequests()
		}
		status, resp, err := p.transport.Send(ctx, url, challenge, headers)
		if err == nil && status >= 200 && status < 300 {
			p.retries = 0
			if p.cfg.TransformResponse != nil {
				resp, err = p.cfg.TransformResponse(resp)
				if err != nil {
					return keySystemError(KindLicenseRequestFailed, true,
						fmt.Errorf("transform license response: %w", err))
				}
			}
			if err := onSuccess(resp); err != nil {
				// The exchange itself succeeded; a key-update
				// failure is session-level and non-fatal.
				return keySystemError(KindNoSession, false, fmt.Errorf("update session: %w", err))
			}
			return nil
		}

		p.retries++
		if p.metrics != nil {
			p.metrics.IncLicenseRetries()
		}
		if p.retries > p.cfg.maxRetries() {
			if p.metrics != nil {
				p.metrics.IncLicenseFailures()
			}
			if err == nil {
				err = fmt.Errorf("license server returned status %d", status)
			}
			return keySystemError(KindLicenseRequestFailed, true,
				fmt.Errorf("license request failed after %d attempts: %w", p.retries, err))
		}
		p.log.Warn("license request failed, retrying",
			slog.String("key_system", string(item.KeySystem)),
			slog.Int("status", status),
			slog.Int("attempt", p.retries),
		)
	}
}

// buildChallenge turns a session's outgoing message into the license request
// body plus the headers that go with it. Widevine sends the message verbatim
// with no extra headers; PlayReady embeds the challenge in a UTF-16 XML key
// message and needs SOAP headers.
func buildChallenge(keySystem KeySystem, message []byte) ([]byte, map[string]string, error) {
	switch keySystem {
	case KeySystemWidevine:
		return message, map[string]string{}, nil
	case KeySystemPlayReady:
		challenge, err := playReadyChallenge(message)
		if err != nil {
			return nil, nil, err
		}
		headers := map[string]string{
			"Content-Type": "text/xml; charset=utf-8",
			"SOAPAction":   playReadySOAPAction,
		}
		return challenge, headers, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedKeySystem, keySystem)
	}
}

// playReadyChallenge extracts the base64-decoded text of the Challenge
// element from a UTF-16 coded PlayReady key message.
func playReadyChallenge(message []byte) ([]byte, error) {
	utf8Message, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder().Bytes(message)
	if err != nil {
		return nil, fmt.Errorf("decode key message: %w", err)
	}

	dec := xml.NewDecoder(strings.NewReader(string(utf8Message)))
	// The key message declares its original utf-16 encoding; the bytes
	// are already transcoded at this point.
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	inChallenge := false
	var encoded strings.Builder
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse key message: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "Challenge" {
				inChallenge = true
			}
		case xml.EndElement:
			if t.Name.Local == "Challenge" && inChallenge {
				challenge, err := base64.StdEncoding.DecodeString(encoded.String())
				if err != nil {
					return nil, fmt.Errorf("decode challenge: %w", err)
				}
				return challenge, nil
			}
		case xml.CharData:
			if inChallenge {
				encoded.Write(t)
			}
		}
	}
	return nil, fmt.Errorf("cannot find challenge in key message")
}
