// Package sessions keeps the live search sessions served over HTTP.
package sessions

import (
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	gocache "github.com/patrickmn/go-cache"

	"github.com/joescharf/ka/internal/models"
	"github.com/joescharf/ka/internal/search"
	"github.com/joescharf/ka/internal/session"
)

// ErrNotFound is returned for unknown or expired session IDs.
var ErrNotFound = errors.New("session not found")

// DefaultTTL is how long an untouched session is kept.
const DefaultTTL = time.Hour

// Config configures a Manager.
type Config struct {
	Client      search.Client
	Recorder    session.Recorder
	Logger      *slog.Logger
	DefaultMode models.SearchMode
	// TTL is the idle lifetime of a session. Zero means DefaultTTL.
	TTL time.Duration
}

// Manager owns session controllers keyed by ULID. Sessions expire after TTL
// without access.
type Manager struct {
	cache       *gocache.Cache
	client      search.Client
	recorder    session.Recorder
	log         *slog.Logger
	defaultMode models.SearchMode
	ttl         time.Duration
}

// NewManager creates an empty registry.
func NewManager(cfg Config) *Manager {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	mode := cfg.DefaultMode
	if mode != models.SearchModeExternal {
		mode = models.SearchModeInternal
	}

	m := &Manager{
		cache:       gocache.New(ttl, ttl/2),
		client:      cfg.Client,
		recorder:    cfg.Recorder,
		log:         log,
		defaultMode: mode,
		ttl:         ttl,
	}
	m.cache.OnEvicted(func(id string, _ interface{}) {
		m.log.Debug("session evicted", "session", id)
	})
	return m
}

// DefaultMode is the mode used by Create when none is given.
func (m *Manager) DefaultMode() models.SearchMode {
	return m.defaultMode
}

// Create starts a new session in mode, or the default mode when mode is empty.
func (m *Manager) Create(mode models.SearchMode) *session.Controller {
	if mode == "" {
		mode = m.defaultMode
	}
	id := ulid.Make().String()

	opts := []session.Option{session.WithID(id), session.WithLogger(m.log)}
	if m.recorder != nil {
		opts = append(opts, session.WithRecorder(m.recorder))
	}
	c := session.New(m.client, mode, opts...)
	m.cache.Set(id, c, m.ttl)
	m.log.Info("session created", "session", id, "mode", mode)
	return c
}

// Get returns the session and extends its lifetime.
func (m *Manager) Get(id string) (*session.Controller, error) {
	v, ok := m.cache.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	c := v.(*session.Controller)
	m.cache.Set(id, c, m.ttl)
	return c, nil
}

// Delete removes a session. It reports whether the session existed.
func (m *Manager) Delete(id string) bool {
	if _, ok := m.cache.Get(id); !ok {
		return false
	}
	m.cache.Delete(id)
	return true
}

// IDs lists live session IDs in creation order.
func (m *Manager) IDs() []string {
	items := m.cache.Items()
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	return m.cache.ItemCount()
}
