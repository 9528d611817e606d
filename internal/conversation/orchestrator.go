// Package conversation runs one chat turn end to end: persist the user turn,
// gather memory, check safety, generate or fall back, and persist the reply.
package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/anuva/internal/fallback"
	"github.com/ent0n29/anuva/internal/memory"
	"github.com/ent0n29/anuva/internal/observability"
	"github.com/ent0n29/anuva/internal/policy"
	"github.com/ent0n29/anuva/internal/prompt"
	"github.com/ent0n29/anuva/internal/provider"
	"github.com/ent0n29/anuva/internal/session"
)

// ErrInvalidRequest is the only error HandleTurn returns.
var ErrInvalidRequest = errors.New("missing parameters")

// MissingReplyText stands in for a successful provider payload without content.
const MissingReplyText = "Sorry, something went wrong."

const promptFactLimit = 3

type Source string

const (
	SourceProvider       Source = "provider"
	SourceFallback       Source = "fallback"
	SourceSafetyRedirect Source = "safety_redirect"
)

type Request struct {
	SessionID string
	UserID    string
	Input     string
}

type Reply struct {
	Text   string
	Source Source
}

// TurnStore is the short-term memory the orchestrator writes to. It absorbs
// its own backend failures.
type TurnStore interface {
	Append(ctx context.Context, sessionID string, turn memory.Turn)
	Recent(ctx context.Context, sessionID string, limit int) []memory.Turn
	Clear(ctx context.Context, sessionID string)
}

type FactSearcher interface {
	SearchFacts(ctx context.Context, userID, query string, limit int) ([]memory.Fact, error)
}

type Options struct {
	// Provider may be nil, in which case every turn takes the fallback path.
	Provider          provider.Provider
	Fallback          fallback.Responder
	Safety            *policy.SafetyFilter
	Sessions          *session.Manager
	Metrics           *observability.Metrics
	ProviderTimeout   time.Duration
	FactLookupTimeout time.Duration
}

type Orchestrator struct {
	turns             TurnStore
	facts             FactSearcher
	provider          provider.Provider
	fallback          fallback.Responder
	safety            *policy.SafetyFilter
	sessions          *session.Manager
	metrics           *observability.Metrics
	providerTimeout   time.Duration
	factLookupTimeout time.Duration
	now               func() time.Time
}

func NewOrchestrator(turns TurnStore, facts FactSearcher, opts Options) *Orchestrator {
	if opts.Fallback == nil {
		opts.Fallback = fallback.NewScriptedResponder()
	}
	if opts.Safety == nil {
		opts.Safety = policy.NewSafetyFilter()
	}
	if opts.Sessions == nil {
		opts.Sessions = session.NewManager(0)
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = 20 * time.Second
	}
	if opts.FactLookupTimeout <= 0 {
		opts.FactLookupTimeout = time.Second
	}
	return &Orchestrator{
		turns:             turns,
		facts:             facts,
		provider:          opts.Provider,
		fallback:          opts.Fallback,
		safety:            opts.Safety,
		sessions:          opts.Sessions,
		metrics:           opts.Metrics,
		providerTimeout:   opts.ProviderTimeout,
		factLookupTimeout: opts.FactLookupTimeout,
		now:               time.Now,
	}
}

// HandleTurn always produces a reply for a well-formed request and persists
// exactly one assistant turn for it. Once the user turn is stored, writes are
// detached from ctx so a disconnecting caller cannot leave the session with
// a dangling user turn.
func (o *Orchestrator) HandleTurn(ctx context.Context, req Request) (Reply, error) {
	if strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Input) == "" {
		return Reply{}, ErrInvalidRequest
	}

	start := time.Now()
	defer func() { o.metrics.ObserveStage(observability.StageTurnTotal, time.Since(start)) }()

	persistCtx := context.WithoutCancel(ctx)
	o.turns.Append(persistCtx, req.SessionID, memory.NewTurn(memory.RoleUser, req.Input, o.now()))
	if s := o.sessions.Touch(req.SessionID, req.UserID); s.Turns == 1 {
		o.metrics.ObserveSessionEvent("started")
	}
	o.metrics.SetActiveSessions(o.sessions.ActiveCount())

	logger := log.WithFields(log.Fields{
		"session_id": req.SessionID,
		"user_id":    req.UserID,
	})
	logger.WithField("preview", policy.LogPreview(req.Input, 0)).Debug("conversation: turn received")

	window, facts := o.gather(ctx, req, logger)
	generation := prompt.Assemble(window, facts, req.UserID, req.Input)

	if o.safety.PreCheck(req.Input) {
		o.metrics.ObserveSafetyFlag("pre")
		logger.Info("conversation: input flagged, replying with redirect")
		return o.commit(persistCtx, req.SessionID, policy.SafeRedirectReply, SourceSafetyRedirect, logger), nil
	}

	text, source := o.generate(ctx, req.SessionID, generation, logger)
	if o.safety.PostCheck(text) {
		o.metrics.ObserveSafetyFlag("post")
		logger.WithField("source", source).Warn("conversation: reply flagged, sanitizing")
		text = o.safety.Sanitize(text)
	}
	return o.commit(persistCtx, req.SessionID, text, source, logger), nil
}

// ClearSession drops the session's turns, fallback position and activity record.
func (o *Orchestrator) ClearSession(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidRequest
	}
	o.turns.Clear(ctx, sessionID)
	o.fallback.Reset(sessionID)
	if _, err := o.sessions.End(sessionID); err == nil {
		o.metrics.ObserveSessionEvent("cleared")
	}
	o.metrics.SetActiveSessions(o.sessions.ActiveCount())
	log.WithField("session_id", sessionID).Info("conversation: session cleared")
	return nil
}

// Transcript returns the retained turns of a session with its activity view.
func (o *Orchestrator) Transcript(ctx context.Context, sessionID string, limit int) ([]memory.Turn, session.View) {
	return o.turns.Recent(ctx, sessionID, limit), o.sessions.View(sessionID)
}

// OnSessionExpired releases per-session state once the session goes idle.
// Stored turns are left to their own retention.
func (o *Orchestrator) OnSessionExpired(s *session.Session) {
	o.fallback.Reset(s.ID)
	o.metrics.ObserveSessionEvent("expired")
	o.metrics.SetActiveSessions(o.sessions.ActiveCount())
	log.WithFields(log.Fields{
		"session_id": s.ID,
		"turns":      s.Turns,
	}).Debug("conversation: session expired")
}

func (o *Orchestrator) gather(ctx context.Context, req Request, logger *log.Entry) ([]memory.Turn, []memory.Fact) {
	var (
		window []memory.Turn
		facts  []memory.Fact
		g      errgroup.Group
	)
	start := time.Now()
	defer func() { o.metrics.ObserveStage(observability.StageMemoryGather, time.Since(start)) }()

	g.Go(func() error {
		window = o.turns.Recent(ctx, req.SessionID, memory.MaxTurns)
		return nil
	})
	g.Go(func() error {
		if o.facts == nil {
			return nil
		}
		lookupCtx, cancel := context.WithTimeout(ctx, o.factLookupTimeout)
		defer cancel()
		found, err := o.facts.SearchFacts(lookupCtx, req.UserID, req.Input, promptFactLimit)
		if err != nil {
			o.metrics.ObserveStorageDegraded("facts")
			logger.WithError(err).Warn("conversation: fact lookup failed, continuing without facts")
			return nil
		}
		facts = found
		return nil
	})
	_ = g.Wait()
	return window, facts
}

func (o *Orchestrator) generate(ctx context.Context, sessionID string, req prompt.Request, logger *log.Entry) (string, Source) {
	if o.provider == nil {
		return o.fallback.Reply(sessionID), SourceFallback
	}

	callCtx, cancel := context.WithTimeout(ctx, o.providerTimeout)
	defer cancel()

	start := time.Now()
	reply, err := o.provider.Generate(callCtx, req)
	elapsed := time.Since(start)
	o.metrics.ObserveProviderLatency(elapsed)
	o.metrics.ObserveStage(observability.StageProvider, elapsed)
	if err != nil {
		code := provider.ErrorCode(err)
		o.metrics.ObserveProviderError(o.provider.Name(), code)
		logger.WithError(err).WithField("code", code).Warn("conversation: provider failed, using fallback reply")
		return o.fallback.Reply(sessionID), SourceFallback
	}
	if strings.TrimSpace(reply.Text) == "" {
		return MissingReplyText, SourceProvider
	}
	return reply.Text, SourceProvider
}

func (o *Orchestrator) commit(ctx context.Context, sessionID, text string, source Source, logger *log.Entry) Reply {
	o.turns.Append(ctx, sessionID, memory.NewTurn(memory.RoleAssistant, text, o.now()))
	o.metrics.ObserveTurn(string(source))
	logger.WithFields(log.Fields{
		"source":  source,
		"preview": policy.LogPreview(text, 0),
	}).Debug("conversation: reply committed")
	return Reply{Text: text, Source: source}
}
