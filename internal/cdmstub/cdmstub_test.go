package cdmstub

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"drm-orchestrator/internal/drm"
)

func TestProvider_GrantsAccess(t *testing.T) {
	p := NewProvider()
	configs := drm.BuildCapabilityConfigs([]string{"mp4a.40.2"}, nil, drm.AccessOptions{})

	handle, err := p.RequestAccess(context.Background(), drm.KeySystemWidevine, configs)
	if err != nil {
		t.Fatalf("RequestAccess: %v", err)
	}
	if p.AccessRequests() != 1 {
		t.Errorf("access requests: got %d want 1", p.AccessRequests())
	}

	cdm, err := handle.CreateCDM(context.Background())
	if err != nil {
		t.Fatalf("CreateCDM: %v", err)
	}
	if cdm == nil {
		t.Fatal("expected a CDM instance")
	}
}

func TestProvider_Rejection(t *testing.T) {
	p := &Provider{RejectAccess: true}
	configs := drm.BuildCapabilityConfigs([]string{"c1"}, nil, drm.AccessOptions{})

	if _, err := p.RequestAccess(context.Background(), drm.KeySystemWidevine, configs); err == nil {
		t.Error("expected rejection")
	}
}

func TestProvider_EmptyConfigsRejected(t *testing.T) {
	p := NewProvider()
	if _, err := p.RequestAccess(context.Background(), drm.KeySystemWidevine, nil); err == nil {
		t.Error("expected rejection for empty capability configs")
	}
}

func TestSession_GenerateEmitsInitDataAsMessage(t *testing.T) {
	cdm := &CDM{}
	sess := cdm.CreateSession()

	var got []byte
	sess.OnMessage(func(message []byte) { got = message })

	initData := []byte{0xde, 0xad}
	if err := sess.GenerateRequest(context.Background(), drm.InitDataTypeCenc, initData); err != nil {
		t.Fatalf("GenerateRequest: %v", err)
	}
	if !bytes.Equal(got, initData) {
		t.Errorf("outgoing message: got %x want %x", got, initData)
	}
	if len(cdm.Sessions()) != 1 || cdm.Sessions()[0].GenerateCalls() != 1 {
		t.Error("cdm should track the session and its generate call")
	}
}

func TestSession_UpdateAndClose(t *testing.T) {
	s := &Session{}
	if err := s.Update(context.Background(), []byte("license")); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(s.Updates()) != 1 {
		t.Errorf("updates: got %d want 1", len(s.Updates()))
	}

	s.CloseErr = errors.New("never generated")
	if err := s.Close(context.Background()); err == nil {
		t.Error("expected injected close error")
	}
	if !s.Closed() {
		t.Error("session should record close even when it rejects")
	}
}

func TestSession_FailGenerate(t *testing.T) {
	s := &Session{FailGenerate: true}
	emitted := false
	s.OnMessage(func([]byte) { emitted = true })

	if err := s.GenerateRequest(context.Background(), drm.InitDataTypeCenc, []byte{1}); err == nil {
		t.Error("expected generate failure")
	}
	if emitted {
		t.Error("no message should be emitted on failure")
	}
}
