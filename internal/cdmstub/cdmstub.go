// Package cdmstub is an in-memory implementation of the drm capability
// interfaces for development and tests. It performs no cryptography: a
// session's outgoing message is simply its init data, and updates are
// recorded verbatim. A native CDM binding implements the same interfaces
// out of tree.
package cdmstub

import (
	"context"
	"errors"
	"sync"

	"drm-orchestrator/internal/drm"
)

// Provider implements drm.AccessProvider.
type Provider struct {
	// RejectAccess makes every access request fail.
	RejectAccess bool
	// FailCreateCDM makes CDM creation fail after access is granted.
	FailCreateCDM bool

	mu             sync.Mutex
	accessRequests int
}

// NewProvider returns a provider that grants access to any supported key
// system.
func NewProvider() *Provider {
	return &Provider{}
}

// AccessRequests returns how many times RequestAccess was called.
func (p *Provider) AccessRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accessRequests
}

// RequestAccess implements drm.AccessProvider.
func (p *Provider) RequestAccess(ctx context.Context, keySystem drm.KeySystem, configs []drm.CapabilityConfig) (drm.AccessHandle, error) {
	p.mu.Lock()
	p.accessRequests++
	p.mu.Unlock()

	if p.RejectAccess {
		return nil, errors.New("cdmstub: access rejected")
	}
	if len(configs) == 0 {
		return nil, errors.New("cdmstub: no capability configs")
	}
	return &handle{failCreate: p.FailCreateCDM}, nil
}

type handle struct {
	failCreate bool
}

func (h *handle) CreateCDM(ctx context.Context) (drm.CDM, error) {
	if h.failCreate {
		return nil, errors.New("cdmstub: cdm creation failed")
	}
	return &CDM{}, nil
}

// CDM implements drm.CDM and keeps the sessions it created.
type CDM struct {
	mu       sync.Mutex
	sessions []*Session
}

// CreateSession implements drm.CDM.
func (c *CDM) CreateSession() drm.Session {
	s := &Session{}
	c.mu.Lock()
	c.sessions = append(c.sessions, s)
	c.mu.Unlock()
	return s
}

// Sessions returns every session this CDM created.
func (c *CDM) Sessions() []*Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Session, len(c.sessions))
	copy(out, c.sessions)
	return out
}

// Session implements drm.Session. GenerateRequest synchronously emits the
// init data as the session's outgoing message.
type Session struct {
	// FailGenerate makes GenerateRequest return an error without
	// emitting a message.
	FailGenerate bool
	// CloseErr is returned from Close when set.
	CloseErr error

	mu        sync.Mutex
	onMessage func([]byte)
	generated int
	updates   [][]byte
	closed    bool
}

// OnMessage implements drm.Session.
func (s *Session) OnMessage(fn func(message []byte)) {
	s.mu.Lock()
	s.onMessage = fn
	s.mu.Unlock()
}

// GenerateRequest implements drm.Session.
func (s *Session) GenerateRequest(ctx context.Context, initDataType string, initData []byte) error {
	if s.FailGenerate {
		return errors.New("cdmstub: generate request failed")
	}
	s.mu.Lock()
	s.generated++
	fn := s.onMessage
	s.mu.Unlock()
	if fn != nil {
		fn(initData)
	}
	return nil
}

// Update implements drm.Session.
func (s *Session) Update(ctx context.Context, response []byte) error {
	s.mu.Lock()
	s.updates = append(s.updates, response)
	s.mu.Unlock()
	return nil
}

// Close implements drm.Session.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.CloseErr
}

// GenerateCalls returns how many times GenerateRequest was issued.
func (s *Session) GenerateCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generated
}

// Updates returns every response fed into the session.
func (s *Session) Updates() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.updates))
	copy(out, s.updates)
	return out
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
