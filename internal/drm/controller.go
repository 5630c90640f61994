package drm

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"drm-orchestrator/internal/platform/metrics"
)

// Controller is the per-playback key-session state machine. The surrounding
// system drives it through the Handle* functions for each external event;
// the controller never registers listeners of its own. Controller logic is
// serialized: the capability calls may block, everything else is quick and
// runs under one mutex.
type Controller struct {
	mu       sync.Mutex
	cfg      Config
	provider AccessProvider
	store    SessionStore
	license  *LicenseProtocol
	report   ErrorSink
	log      *slog.Logger
	metrics  *metrics.Metrics

	sink MediaSink
	cdm  CDM

	accessRequested   bool
	currentPssh       string
	lastProcessedPssh string
}

// NewController builds a controller for one playback. report receives every
// non-recoverable error exactly once and must not be nil; metrics may be nil
// to disable metric recording.
func NewController(cfg Config, provider AccessProvider, transport Transport, report ErrorSink, log *slog.Logger, m *metrics.Metrics) *Controller {
	store := NewInMemorySessionStore()
	return &Controller{
		cfg:      cfg,
		provider: provider,
		store:    store,
		license:  NewLicenseProtocol(cfg, store, transport, log, m),
		report:   report,
		log:      log,
		metrics:  m,
	}
}

// HandleMediaAttached records the playback's media sink. Events arriving
// before attachment are treated as if the media were already detached.
func (c *Controller) HandleMediaAttached(sink MediaSink) {
	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()
}

// HandleCodecsKnown starts access negotiation once the codec lists are
// available. An unsupported key system fails synchronously, before any
// capability call; a provider rejection is swallowed (see requestAccess).
func (c *Controller) HandleCodecsKnown(ctx context.Context, audioCodecs, videoCodecs []string, opts AccessOptions) error {
	return c.requestAccess(ctx, audioCodecs, videoCodecs, opts)
}

// HandleProtectionMetadata extracts init data from discovered protection
// metadata and, unless the PSSH fingerprint was already acted upon, issues
// request generation for the active session.
func (c *Controller) HandleProtectionMetadata(ctx context.Context, entries []ProtectionData) error {
	ext, err := ExtractInitData(c.cfg.KeySystem, entries)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.currentPssh = ext.Fingerprint
	if ext.Fingerprint == c.lastProcessedPssh {
		c.mu.Unlock()
		c.log.Debug("duplicate protection metadata ignored")
		return nil
	}
	c.lastProcessedPssh = ext.Fingerprint
	c.mu.Unlock()

	c.generateRequestForActiveSession(ctx, ext.Type, ext.Data)
	return nil
}

// HandleEncrypted reacts to the encrypted-content signal. If no access
// negotiation was ever requested the signal cannot be served at all, which
// is the one NO_KEYS condition.
func (c *Controller) HandleEncrypted(ctx context.Context, initDataType string, initData []byte) {
	c.mu.Lock()
	requested := c.accessRequested
	c.mu.Unlock()

	if !requested {
		c.reportError(keySystemError(KindNoKeys, true,
			errors.New("encrypted signal with no access negotiation")))
		return
	}
	c.generateRequestForActiveSession(ctx, initDataType, initData)
}

// HandleMediaDetached tears the controller down: the media reference is
// cleared first so in-flight continuations become no-ops, then every tracked
// session is closed best-effort and key material is removed from the sink.
// Close results are collected and logged in aggregate, never propagated;
// closing a session that never issued a request is expected to fail.
func (c *Controller) HandleMediaDetached(ctx context.Context) {
	c.mu.Lock()
	sink := c.sink
	c.sink = nil
	items := c.store.List()
	c.store.Clear()
	c.currentPssh = ""
	c.lastProcessedPssh = ""
	c.accessRequested = false
	c.mu.Unlock()

	c.license.ResetRetries()

	var closeErrs []error
	closed := 0
	for _, item := range items {
		if item.Session == nil {
			continue
		}
		if err := item.Session.Close(ctx); err != nil {
			closeErrs = append(closeErrs, err)
			continue
		}
		closed++
	}
	if len(items) > 0 {
		c.log.Info("key sessions torn down",
			slog.Int("tracked", len(items)),
			slog.Int("closed", closed),
			slog.Int("failed", len(closeErrs)),
		)
	}
	if len(closeErrs) > 0 {
		c.log.Debug("session close rejections during teardown",
			slog.String("error", errors.Join(closeErrs...).Error()))
	}

	if sink != nil {
		if err := sink.RemoveKeys(ctx); err != nil {
			c.log.Warn("removing key material from media sink failed",
				slog.String("error", err.Error()))
		}
	}
}

// ensureSessions creates a session for every item that lacks one and wires
// its outgoing-message notification into the license protocol. Session
// creation is synchronous on the CDM.
func (c *Controller) ensureSessions() {
	c.mu.Lock()
	var created []*SessionItem
	for _, item := range c.store.List() {
		if item.Session != nil {
			continue
		}
		item.Session = item.CDM.CreateSession()
		item.State = StateSessionCreated
		created = append(created, item)
		if c.metrics != nil {
			c.metrics.IncSessionsCreated()
		}
	}
	c.mu.Unlock()

	for _, item := range created {
		id := item.ID
		item.Session.OnMessage(func(message []byte) {
			c.onSessionMessage(id, message)
		})
		c.log.Debug("key session created", slog.String("session_item", string(id)))
	}
}

// generateRequestForActiveSession issues the request-generation step for the
// active session item, at most once per item.
func (c *Controller) generateRequestForActiveSession(ctx context.Context, initDataType string, initData []byte) {
	c.mu.Lock()
	item, ok := c.store.Active()
	if !ok {
		// Clear the fingerprint so a later protection-metadata event
		// is not suppressed as a duplicate.
		c.lastProcessedPssh = ""
		c.mu.Unlock()
		c.reportError(keySystemError(KindNoAccess, true,
			errors.New("no session item for request generation")))
		return
	}
	if item.Session == nil {
		c.mu.Unlock()
		c.reportError(keySystemError(KindNoSession, true,
			errors.New("session item has no session")))
		return
	}
	if item.State >= StateRequestGenerated {
		c.mu.Unlock()
		c.log.Debug("request already generated for active session",
			slog.String("session_item", string(item.ID)),
			slog.String("state", item.State.String()),
		)
		return
	}
	if initData == nil {
		c.mu.Unlock()
		c.reportError(keySystemError(KindNoInitData, true,
			errors.New("init data withheld for request generation")))
		return
	}
	// Flip state before dispatching so a replayed signal cannot race
	// past the guard above.
	item.State = StateRequestGenerated
	sess := item.Session
	c.mu.Unlock()

	if err := sess.GenerateRequest(ctx, initDataType, initData); err != nil {
		c.reportError(keySystemError(KindNoSession, false, err))
	}
}

// onSessionMessage runs the license exchange for a session's outgoing
// message and feeds the response back into that session.
func (c *Controller) onSessionMessage(id SessionItemID, message []byte) {
	ctx := context.Background()

	c.mu.Lock()
	item, ok := c.store.Get(id)
	detached := c.sink == nil
	c.mu.Unlock()
	if !ok || detached {
		c.log.Debug("session message dropped", slog.String("session_item", string(id)))
		return
	}

	kerr := c.license.RequestLicense(ctx, message, func(response []byte) error {
		c.mu.Lock()
		gone := c.sink == nil
		c.mu.Unlock()
		if gone {
			return nil
		}
		return item.Session.Update(ctx, response)
	})
	if kerr != nil {
		if kerr.Fatal {
			c.mu.Lock()
			item.State = StateFailed
			c.mu.Unlock()
		}
		c.reportError(kerr)
		return
	}

	c.mu.Lock()
	if item.State == StateRequestGenerated {
		item.State = StateLicenseExchanged
	}
	c.mu.Unlock()
	c.log.Info("license exchanged", slog.String("session_item", string(id)))
}

// reportError logs and forwards exactly one structured notification.
func (c *Controller) reportError(kerr *KeySystemError) {
	c.log.Error("key system error",
		slog.String("kind", string(kerr.Kind)),
		slog.Bool("fatal", kerr.Fatal),
		slog.String("error", kerr.Error()),
	)
	if c.metrics != nil {
		c.metrics.IncKeySystemError(string(kerr.Kind))
	}
	if c.report != nil {
		c.report(kerr)
	}
}
