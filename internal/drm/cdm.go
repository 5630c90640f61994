package drm

import "context"

// The interfaces below are the capability boundary of the controller. The
// concrete content-protection subsystem is opaque and injected; this package
// never implements key exchange or decryption itself.

// AccessProvider negotiates access to a CDM for a key system and a set of
// candidate capability configurations.
type AccessProvider interface {
	RequestAccess(ctx context.Context, keySystem KeySystem, configs []CapabilityConfig) (AccessHandle, error)
}

// AccessHandle is the result of a successful access negotiation. It can
// create the CDM instance itself.
type AccessHandle interface {
	CreateCDM(ctx context.Context) (CDM, error)
}

// CDM is an opaque content-decryption-module instance. A controller creates
// at most one and shares it across all of its session items.
type CDM interface {
	CreateSession() Session
}

// Session is a single key session inside a CDM. GenerateRequest makes the
// session emit an outgoing message through the OnMessage callback; Update
// feeds the license-server response back to complete the handshake.
type Session interface {
	OnMessage(fn func(message []byte))
	GenerateRequest(ctx context.Context, initDataType string, initData []byte) error
	Update(ctx context.Context, response []byte) error
	Close(ctx context.Context) error
}

// Transport performs one license-server round trip. It owns its own timeout
// policy; the controller only bounds the number of attempts.
type Transport interface {
	Send(ctx context.Context, url string, body []byte, headers map[string]string) (status int, response []byte, err error)
}

// MediaSink is the controller's view of the playback element: the only thing
// it ever asks of it is to drop key material during teardown.
type MediaSink interface {
	RemoveKeys(ctx context.Context) error
}
