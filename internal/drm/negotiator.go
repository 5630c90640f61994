package drm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// BuildCapabilityConfigs derives the candidate configuration list for one
// negotiation attempt: a single config with one capability entry per codec.
// Robustness falls back to "" when the options leave it unset.
func BuildCapabilityConfigs(audioCodecs, videoCodecs []string, opts AccessOptions) []CapabilityConfig {
	cfg := CapabilityConfig{}
	for _, codec := range audioCodecs {
		cfg.AudioCapabilities = append(cfg.AudioCapabilities, MediaCapability{
			ContentType: codec,
			Robustness:  opts.AudioRobustness,
		})
	}
	for _, codec := range videoCodecs {
		cfg.VideoCapabilities = append(cfg.VideoCapabilities, MediaCapability{
			ContentType: codec,
			Robustness:  opts.VideoRobustness,
		})
	}
	return []CapabilityConfig{cfg}
}

// requestAccess negotiates CDM access for the controller's key system and
// appends a session item on success. An access-provider rejection is logged
// and swallowed here: it leaves no session item behind, so downstream steps
// surface their own NO_ACCESS error instead of the pipeline crashing now.
func (c *Controller) requestAccess(ctx context.Context, audioCodecs, videoCodecs []string, opts AccessOptions) error {
	if !c.cfg.KeySystem.Supported() {
		return fmt.Errorf("%w: %q", ErrUnsupportedKeySystem, c.cfg.KeySystem)
	}
	configs := BuildCapabilityConfigs(audioCodecs, videoCodecs, opts)

	c.mu.Lock()
	c.accessRequested = true
	c.mu.Unlock()

	handle, err := c.provider.RequestAccess(ctx, c.cfg.KeySystem, configs)
	if err != nil {
		c.log.Warn("cdm access request rejected",
			slog.String("key_system", string(c.cfg.KeySystem)),
			slog.String("error", err.Error()),
		)
		return nil
	}

	c.mu.Lock()
	cdm := c.cdm
	detached := c.sink == nil
	c.mu.Unlock()
	if detached {
		c.log.Debug("media detached during access negotiation")
		return nil
	}

	if cdm == nil {
		cdm, err = handle.CreateCDM(ctx)
		if err != nil {
			c.log.Warn("cdm creation failed",
				slog.String("key_system", string(c.cfg.KeySystem)),
				slog.String("error", err.Error()),
			)
			return nil
		}
	}

	c.mu.Lock()
	if c.sink == nil {
		c.mu.Unlock()
		c.log.Debug("media detached during cdm creation")
		return nil
	}
	if c.cdm == nil {
		// Controller-wide singleton: later negotiations reuse it.
		c.cdm = cdm
	}
	item := &SessionItem{
		ID:        SessionItemID(uuid.NewString()),
		KeySystem: c.cfg.KeySystem,
		Access:    handle,
		CDM:       c.cdm,
		State:     StateAccessGranted,
	}
	c.store.Put(item)
	c.store.SetActive(item.ID)
	c.mu.Unlock()

	c.log.Info("cdm access granted",
		slog.String("key_system", string(c.cfg.KeySystem)),
		slog.String("session_item", string(item.ID)),
	)

	c.ensureSessions()
	return nil
}
