package drm

import (
	"context"
	"errors"
	"sync"
	"testing"

	"drm-orchestrator/internal/platform/logger"
)

// Capability fakes shared across the package tests.

type fakeProvider struct {
	rejectAccess bool
	handle       *fakeHandle

	calls       int
	lastConfigs []CapabilityConfig
}

func (p *fakeProvider) RequestAccess(ctx context.Context, keySystem KeySystem, configs []CapabilityConfig) (AccessHandle, error) {
	p.calls++
	p.lastConfigs = configs
	if p.rejectAccess {
		return nil, errors.New("access denied")
	}
	if p.handle == nil {
		p.handle = &fakeHandle{}
	}
	return p.handle, nil
}

type fakeHandle struct {
	failCreate bool
	cdm        *fakeCDM
	creates    int
}

func (h *fakeHandle) CreateCDM(ctx context.Context) (CDM, error) {
	h.creates++
	if h.failCreate {
		return nil, errors.New("cdm creation failed")
	}
	if h.cdm == nil {
		h.cdm = &fakeCDM{}
	}
	return h.cdm, nil
}

type fakeCDM struct {
	sessions []*fakeSession
}

func (c *fakeCDM) CreateSession() Session {
	s := &fakeSession{}
	c.sessions = append(c.sessions, s)
	return s
}

type fakeSession struct {
	failGenerate bool
	closeErr     error

	onMessage     func([]byte)
	generateCalls int
	updates       [][]byte
	closed        bool
}

func (s *fakeSession) OnMessage(fn func(message []byte)) { s.onMessage = fn }

func (s *fakeSession) GenerateRequest(ctx context.Context, initDataType string, initData []byte) error {
	s.generateCalls++
	if s.failGenerate {
		return errors.New("generate request failed")
	}
	// Emit synchronously, like a CDM that produces the outgoing message
	// as part of request generation.
	if s.onMessage != nil {
		s.onMessage(initData)
	}
	return nil
}

func (s *fakeSession) Update(ctx context.Context, response []byte) error {
	s.updates = append(s.updates, response)
	return nil
}

func (s *fakeSession) Close(ctx context.Context) error {
	s.closed = true
	return s.closeErr
}

type sendResult struct {
	status int
	resp   []byte
	err    error
}

type fakeTransport struct {
	// script is consumed one entry per Send; when exhausted the last
	// entry repeats.
	script []sendResult

	calls       int
	lastURL     string
	lastBody    []byte
	lastHeaders map[string]string
}

func (t *fakeTransport) Send(ctx context.Context, url string, body []byte, headers map[string]string) (int, []byte, error) {
	t.calls++
	t.lastURL = url
	t.lastBody = body
	t.lastHeaders = headers
	if len(t.script) == 0 {
		return 200, []byte("license"), nil
	}
	idx := t.calls - 1
	if idx >= len(t.script) {
		idx = len(t.script) - 1
	}
	r := t.script[idx]
	return r.status, r.resp, r.err
}

type fakeSink struct {
	removeErr   error
	removeCalls int
}

func (s *fakeSink) RemoveKeys(ctx context.Context) error {
	s.removeCalls++
	return s.removeErr
}

type errorRecorder struct {
	mu   sync.Mutex
	errs []*KeySystemError
}

func (r *errorRecorder) sink() ErrorSink {
	return func(kerr *KeySystemError) {
		r.mu.Lock()
		r.errs = append(r.errs, kerr)
		r.mu.Unlock()
	}
}

func (r *errorRecorder) reported() []*KeySystemError {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*KeySystemError, len(r.errs))
	copy(out, r.errs)
	return out
}

func testConfig(keySystem KeySystem) Config {
	return Config{
		KeySystem: keySystem,
		LicenseURLs: map[KeySystem]string{
			KeySystemWidevine:  "https://license.example.com/widevine",
			KeySystemPlayReady: "https://license.example.com/playready",
		},
	}
}

func newTestController(t *testing.T, cfg Config, provider AccessProvider, transport Transport) (*Controller, *errorRecorder) {
	t.Helper()
	rec := &errorRecorder{}
	return NewController(cfg, provider, transport, rec.sink(), logger.Discard(), nil), rec
}
