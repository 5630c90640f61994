package drm

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"drm-orchestrator/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

// ControllerFactory builds a controller for a new playback, wiring the given
// error sink into it.
type ControllerFactory func(report ErrorSink) *Controller

// Handler exposes the controller's event surface over HTTP, one playback
// context per {playback_id}. A player-side component posts the events it
// observes and polls reported errors to act on fatal ones.
type Handler struct {
	factory ControllerFactory
	log     *slog.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	playbacks map[string]*playback
}

type playback struct {
	ctrl *Controller

	mu     sync.Mutex
	errors []*KeySystemError
}

func (p *playback) record(kerr *KeySystemError) {
	p.mu.Lock()
	p.errors = append(p.errors, kerr)
	p.mu.Unlock()
}

func (p *playback) reported() []*KeySystemError {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*KeySystemError, len(p.errors))
	copy(out, p.errors)
	return out
}

// playbackSink is the service-side media sink: key removal happens in the
// player, so the orchestrator only records that teardown reached that step.
type playbackSink struct {
	log *slog.Logger
	id  string
}

func (s *playbackSink) RemoveKeys(ctx context.Context) error {
	s.log.Info("key material removal requested", slog.String("playback_id", s.id))
	return nil
}

// NewHandler returns a Handler that builds controllers through factory.
// Metrics may be nil to disable metric recording (e.g. in tests).
func NewHandler(factory ControllerFactory, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		factory:   factory,
		log:       log,
		metrics:   m,
		playbacks: make(map[string]*playback),
	}
}

// ActivePlaybacks returns the number of attached playback contexts.
// Used for metrics.
func (h *Handler) ActivePlaybacks() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.playbacks)
}

// Routes registers the playback event endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/playbacks/{playback_id}", func(r chi.Router) {
		r.Post("/attach", h.Attach)
		r.Post("/detach", h.Detach)
		r.Post("/codecs", h.CodecsKnown)
		r.Post("/protection-data", h.ProtectionData)
		r.Post("/encrypted", h.Encrypted)
		r.Get("/errors", h.Errors)
	})
}

func (h *Handler) lookup(r *http.Request) (*playback, string, bool) {
	id := chi.URLParam(r, "playback_id")
	h.mu.Lock()
	pb, ok := h.playbacks[id]
	h.mu.Unlock()
	return pb, id, ok
}

// Attach handles POST /playbacks/{playback_id}/attach: it creates the
// playback's controller and hands it the media sink.
func (h *Handler) Attach(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "playback_id")
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	pb := &playback{}
	pb.ctrl = h.factory(pb.record)

	h.mu.Lock()
	if _, exists := h.playbacks[id]; exists {
		h.mu.Unlock()
		w.WriteHeader(http.StatusConflict)
		return
	}
	h.playbacks[id] = pb
	h.mu.Unlock()

	pb.ctrl.HandleMediaAttached(&playbackSink{log: h.log, id: id})
	if h.metrics != nil {
		h.metrics.SetActivePlaybacks(h.ActivePlaybacks())
	}
	h.log.Info("playback attached", slog.String("playback_id", id))
	w.WriteHeader(http.StatusCreated)
}

// Detach handles POST /playbacks/{playback_id}/detach.
func (h *Handler) Detach(w http.ResponseWriter, r *http.Request) {
	pb, id, ok := h.lookup(r)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	pb.ctrl.HandleMediaDetached(r.Context())

	h.mu.Lock()
	delete(h.playbacks, id)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.SetActivePlaybacks(h.ActivePlaybacks())
	}
	h.log.Info("playback detached", slog.String("playback_id", id))
	w.WriteHeader(http.StatusOK)
}

// CodecsKnown handles POST /playbacks/{playback_id}/codecs.
// Body: { "audio": ["mp4a.40.2"], "video": ["avc1.64001f"],
//         "audio_robustness": "", "video_robustness": "" }.
func (h *Handler) CodecsKnown(w http.ResponseWriter, r *http.Request) {
	pb, id, ok := h.lookup(r)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var body struct {
		Audio           []string `json:"audio"`
		Video           []string `json:"video"`
		AudioRobustness string   `json:"audio_robustness"`
		VideoRobustness string   `json:"video_robustness"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.log.Debug("invalid codecs body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	opts := AccessOptions{AudioRobustness: body.AudioRobustness, VideoRobustness: body.VideoRobustness}
	if err := pb.ctrl.HandleCodecsKnown(r.Context(), body.Audio, body.Video, opts); err != nil {
		if errors.Is(err, ErrUnsupportedKeySystem) {
			h.log.Info("codecs rejected",
				slog.String("playback_id", id),
				slog.String("error", err.Error()))
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		h.log.Error("access negotiation failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ProtectionData handles POST /playbacks/{playback_id}/protection-data.
// Body: { "entries": [ { "key_format": "...", "uri": "base64,AAAA..." } ] }.
func (h *Handler) ProtectionData(w http.ResponseWriter, r *http.Request) {
	pb, _, ok := h.lookup(r)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var body struct {
		Entries []ProtectionData `json:"entries"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Entries) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := pb.ctrl.HandleProtectionMetadata(r.Context(), body.Entries); err != nil {
		h.log.Debug("protection metadata rejected", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Encrypted handles POST /playbacks/{playback_id}/encrypted.
// Body: { "init_data_type": "cenc", "init_data": "<base64>" }; a null
// init_data models content the player may not read init data from.
func (h *Handler) Encrypted(w http.ResponseWriter, r *http.Request) {
	pb, _, ok := h.lookup(r)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var body struct {
		InitDataType string `json:"init_data_type"`
		InitData     []byte `json:"init_data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	pb.ctrl.HandleEncrypted(r.Context(), body.InitDataType, body.InitData)
	w.WriteHeader(http.StatusAccepted)
}

// Errors handles GET /playbacks/{playback_id}/errors, returning every
// reported key-system error so the driving component can halt on fatal ones.
func (h *Handler) Errors(w http.ResponseWriter, r *http.Request) {
	pb, _, ok := h.lookup(r)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	type reportedError struct {
		Kind    string `json:"kind"`
		Fatal   bool   `json:"fatal"`
		Message string `json:"message"`
	}
	out := make([]reportedError, 0)
	for _, kerr := range pb.reported() {
		out = append(out, reportedError{
			Kind:    string(kerr.Kind),
			Fatal:   kerr.Fatal,
			Message: kerr.Error(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(out)
}
