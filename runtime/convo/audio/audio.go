// Package audio implements the audio dispatcher: it resolves a reply to a
// playable URL, serving canned phrases from pre-rendered per-restaurant
// objects and dynamic text from hash-keyed TTS synthesis. Audio is best
// effort; every failure degrades to an empty URL and the caller still returns
// the reply text.
package audio

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/curbvoice/curbvoice/runtime/convo/phrase"
	"github.com/curbvoice/curbvoice/runtime/convo/telemetry"
)

type (
	// TTS synthesizes speech. Implementations wrap provider SDKs.
	TTS interface {
		// Synthesize renders text to audio bytes (MP3).
		Synthesize(ctx context.Context, text, voice, language string) ([]byte, error)
	}

	// ObjectStore persists rendered audio under stable keys. Writes are
	// idempotent: putting the same key twice is harmless.
	ObjectStore interface {
		// Put stores the object and returns its public URL.
		Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
		// Get returns the public URL of an existing object. found is false
		// when the key is absent.
		Get(ctx context.Context, key string) (url string, found bool, err error)
	}

	// DispatcherOptions configures a Dispatcher.
	DispatcherOptions struct {
		// Phrases resolves canned phrase texts for synthesis on cache miss.
		// Nil uses the built-in catalog.
		Phrases *phrase.Catalog
		// Voice and Language select the TTS voice. They participate in the
		// dynamic object key.
		Voice    string
		Language string
		// TTSTimeout bounds each synthesis call. Defaults to 15s.
		TTSTimeout time.Duration
		// StoreTimeout bounds each object store call. Defaults to 10s.
		StoreTimeout time.Duration
		Logger       telemetry.Logger
		Metrics      telemetry.Metrics
	}

	// Dispatcher resolves replies to audio URLs.
	Dispatcher struct {
		tts      TTS
		store    ObjectStore
		phrases  *phrase.Catalog
		voice    string
		language string
		ttsTO    time.Duration
		storeTO  time.Duration
		logger   telemetry.Logger
		metrics  telemetry.Metrics
	}
)

const (
	defaultVoice    = "alloy"
	defaultLanguage = "en"
	audioMIME       = "audio/mpeg"
)

// NewDispatcher builds a Dispatcher over the given TTS engine and store.
func NewDispatcher(tts TTS, store ObjectStore, opts DispatcherOptions) (*Dispatcher, error) {
	if tts == nil {
		return nil, errors.New("audio: tts engine is required")
	}
	if store == nil {
		return nil, errors.New("audio: object store is required")
	}
	phrases := opts.Phrases
	if phrases == nil {
		phrases = phrase.NewCatalog(nil)
	}
	voice := opts.Voice
	if voice == "" {
		voice = defaultVoice
	}
	language := opts.Language
	if language == "" {
		language = defaultLanguage
	}
	ttsTO := opts.TTSTimeout
	if ttsTO <= 0 {
		ttsTO = 15 * time.Second
	}
	storeTO := opts.StoreTimeout
	if storeTO <= 0 {
		storeTO = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Dispatcher{
		tts:      tts,
		store:    store,
		phrases:  phrases,
		voice:    voice,
		language: language,
		ttsTO:    ttsTO,
		storeTO:  storeTO,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Canned resolves the pre-rendered object of a phrase, synthesizing and
// storing it on first use. Returns "" on any failure.
func (d *Dispatcher) Canned(ctx context.Context, restaurantID int64, id phrase.ID) string {
	key := fmt.Sprintf("restaurants/%d/canned/%s.mp3", restaurantID, id)
	if url, ok := d.lookup(ctx, key); ok {
		return url
	}
	text := d.phrases.Text(restaurantID, id)
	if strings.TrimSpace(text) == "" {
		return ""
	}
	return d.render(ctx, key, text)
}

// Dynamic resolves freshly composed text to a hash-keyed object. Empty or
// whitespace text yields "" without synthesis.
func (d *Dispatcher) Dynamic(ctx context.Context, restaurantID int64, text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	key := fmt.Sprintf("restaurants/%d/tts/%s.mp3", restaurantID, d.contentHash(text))
	if url, ok := d.lookup(ctx, key); ok {
		return url
	}
	return d.render(ctx, key, text)
}

// contentHash keys a synthesis by everything that shapes its audio.
func (d *Dispatcher) contentHash(text string) string {
	sum := sha256.Sum256([]byte(d.voice + "|" + d.language + "|" + text))
	return hex.EncodeToString(sum[:])
}

func (d *Dispatcher) lookup(ctx context.Context, key string) (string, bool) {
	sctx, cancel := context.WithTimeout(ctx, d.storeTO)
	defer cancel()
	url, found, err := d.store.Get(sctx, key)
	if err != nil {
		d.logger.Warn(ctx, "audio object lookup failed", "key", key, "err", err.Error())
		return "", false
	}
	return url, found
}

// render synthesizes and stores, returning "" on any failure. Once synthesis
// succeeded the object is always written since it is cheap to reuse.
func (d *Dispatcher) render(ctx context.Context, key, text string) string {
	tctx, cancel := context.WithTimeout(ctx, d.ttsTO)
	data, err := d.tts.Synthesize(tctx, text, d.voice, d.language)
	cancel()
	if err != nil {
		d.logger.Warn(ctx, "tts synthesis failed", "key", key, "err", err.Error())
		return ""
	}
	d.metrics.IncCounter(telemetry.MetricTTSSyntheses, 1)

	sctx, cancel := context.WithTimeout(ctx, d.storeTO)
	defer cancel()
	url, err := d.store.Put(sctx, key, data, audioMIME)
	if err != nil {
		d.logger.Warn(ctx, "audio object store failed", "key", key, "err", err.Error())
		return ""
	}
	return url
}
