package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/joescharf/ka/internal/models"
	"github.com/joescharf/ka/internal/search"
)

// emptyResponseMessage is stored when a client returns neither a result nor an error.
const emptyResponseMessage = "The search service returned an empty response."

// recordTimeout bounds a single transcript write.
const recordTimeout = 5 * time.Second

// Recorder receives a transcript entry for every request whose outcome was
// applied to the session.
type Recorder interface {
	RecordTurn(ctx context.Context, turn *models.Turn) error
}

// Request is a search issued by the controller and not yet completed.
type Request struct {
	Kind    models.TurnKind
	Mode    models.SearchMode
	Query   string
	History []models.Message

	gen     uint64
	started time.Time
}

// Completion is the outcome of running a Request.
type Completion struct {
	Request  *Request
	Result   *models.SearchResult
	Err      error
	Duration time.Duration
}

// Controller owns a session's State. Each submit is split into a Begin step
// that validates and resets synchronously and a Complete step that applies
// the outcome. A completion is applied only if no other operation has begun
// since its request was issued.
type Controller struct {
	mu    sync.Mutex
	state State
	gen   uint64

	id       string
	client   search.Client
	recorder Recorder
	log      *slog.Logger
	now      func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRecorder sends completed turns to r.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithID sets the session identifier used in logs and transcript entries.
func WithID(id string) Option {
	return func(c *Controller) { c.id = id }
}

// New creates a controller in the empty state for mode.
func New(client search.Client, mode models.SearchMode, opts ...Option) *Controller {
	c := &Controller{
		state:  NewState(mode),
		client: client,
		log:    slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("session", c.id)
	return c
}

// ID returns the session identifier.
func (c *Controller) ID() string {
	return c.id
}

// Snapshot returns a copy of the current state that later updates never touch.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// SwitchMode changes the mode and resets the session. Any outstanding
// request is orphaned: its completion will be discarded. Unknown modes are
// ignored and reported as false.
func (c *Controller) SwitchMode(mode models.SearchMode) bool {
	if mode != models.SearchModeInternal && mode != models.SearchModeExternal {
		c.log.Debug("ignoring switch to unknown mode", "mode", mode)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.state = NewState(mode)
	c.log.Info("mode switched", "mode", mode)
	return true
}

// BeginQuery starts a new top-level query. The session is fully reset and
// the request carries no history. It returns false without touching state
// for a blank query or while another request is outstanding.
func (c *Controller) BeginQuery(query string) (*Request, bool) {
	if strings.TrimSpace(query) == "" {
		c.log.Debug("skipping blank query")
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Loading {
		c.log.Debug("skipping query while loading")
		return nil, false
	}

	c.gen++
	c.state = NewState(c.state.Mode)
	c.state.Loading = true

	c.log.Info("query started", "mode", c.state.Mode)
	return &Request{
		Kind:    models.TurnKindQuery,
		Mode:    c.state.Mode,
		Query:   query,
		History: []models.Message{},
		gen:     c.gen,
		started: c.now(),
	}, true
}

// BeginFollowUp continues an external conversation. Only the error is
// cleared; the request carries the accumulated history. It returns false
// for a blank query, outside external mode, or while loading.
func (c *Controller) BeginFollowUp(query string) (*Request, bool) {
	if strings.TrimSpace(query) == "" {
		c.log.Debug("skipping blank follow-up")
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Mode != models.SearchModeExternal {
		c.log.Debug("skipping follow-up outside external mode", "mode", c.state.Mode)
		return nil, false
	}
	if c.state.Loading {
		c.log.Debug("skipping follow-up while loading")
		return nil, false
	}

	c.gen++
	c.state.Loading = true
	c.state.Error = ""

	history := append([]models.Message{}, c.state.History()...)

	c.log.Info("follow-up started", "turns", len(c.state.Conversation()))
	return &Request{
		Kind:    models.TurnKindFollowUp,
		Mode:    c.state.Mode,
		Query:   query,
		History: history,
		gen:     c.gen,
		started: c.now(),
	}, true
}

// Run performs the remote call for req. It does not touch session state and
// is safe to call from any goroutine.
func (c *Controller) Run(ctx context.Context, req *Request) Completion {
	res, err := c.client.Search(ctx, req.Mode, req.Query, req.History)
	if err == nil && res == nil {
		err = &search.Error{Message: emptyResponseMessage}
	}
	return Completion{
		Request:  req,
		Result:   res,
		Err:      err,
		Duration: c.now().Sub(req.started),
	}
}

// Complete applies a completion. It returns false when the completion is
// stale, i.e. a mode switch or another submit happened after its request
// began; stale completions leave the state untouched.
func (c *Controller) Complete(comp Completion) bool {
	req := comp.Request
	if req == nil {
		return false
	}

	c.mu.Lock()
	if req.gen != c.gen {
		c.mu.Unlock()
		c.log.Debug("discarding stale completion", "kind", req.Kind)
		return false
	}

	next := c.state.clone()
	next.Loading = false

	if comp.Err != nil {
		next.Error = search.Message(comp.Err)
	} else {
		switch req.Kind {
		case models.TurnKindQuery:
			if req.Mode == models.SearchModeExternal {
				next.Results = Conversation{}.appendTurn(req.Query, comp.Result)
			} else {
				next.Results = SingleResult{Result: comp.Result}
			}
		case models.TurnKindFollowUp:
			conv, _ := next.Results.(Conversation)
			next.Results = conv.appendTurn(req.Query, comp.Result)
		}
	}
	c.state = next
	c.mu.Unlock()

	if comp.Err != nil {
		c.log.Warn("search failed", "kind", req.Kind, "error", next.Error, "took", comp.Duration)
	} else {
		c.log.Info("search completed", "kind", req.Kind, "sources", len(comp.Result.Sources), "took", comp.Duration)
	}

	c.record(req, comp, next.Error)
	return true
}

// SubmitQuery runs a complete top-level query and reports whether a request
// was issued. Request failures are stored in the state, never returned.
func (c *Controller) SubmitQuery(ctx context.Context, query string) bool {
	req, ok := c.BeginQuery(query)
	if !ok {
		return false
	}
	c.Complete(c.Run(ctx, req))
	return true
}

// SubmitFollowUp runs a complete follow-up and reports whether a request
// was issued.
func (c *Controller) SubmitFollowUp(ctx context.Context, query string) bool {
	req, ok := c.BeginFollowUp(query)
	if !ok {
		return false
	}
	c.Complete(c.Run(ctx, req))
	return true
}

func (c *Controller) record(req *Request, comp Completion, errMsg string) {
	if c.recorder == nil {
		return
	}

	turn := &models.Turn{
		SessionID:   c.id,
		Kind:        req.Kind,
		Mode:        req.Mode,
		Query:       req.Query,
		Error:       errMsg,
		Duration:    comp.Duration,
		CompletedAt: c.now().UTC(),
	}
	if comp.Err == nil {
		turn.Summary = comp.Result.Summary
		turn.Sources = comp.Result.Sources
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := c.recorder.RecordTurn(ctx, turn); err != nil {
		c.log.Warn("failed to record turn", "error", err)
	}
}
