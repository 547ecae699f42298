// Package turn implements the turn orchestrator, the only component aware of
// the whole pipeline. One ProcessTurn call classifies the utterance, steps the
// conversation state machine, parses and executes commands when the
// transition requires them, aggregates the reply, resolves its audio and
// persists the session mutation. Turns within a session are serialized by a
// per-session advisory lock; turns across sessions run fully parallel.
//
// The orchestrator is the single translator from SYSTEM failures to
// user-facing speech: errors from the classifier, the parsers or the bus are
// converted into a fatal batch result and the customer still hears a
// well-formed sentence.
package turn

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/curbvoice/curbvoice/runtime/convo/audio"
	"github.com/curbvoice/curbvoice/runtime/convo/clock"
	"github.com/curbvoice/curbvoice/runtime/convo/command"
	"github.com/curbvoice/curbvoice/runtime/convo/fsm"
	"github.com/curbvoice/curbvoice/runtime/convo/intent"
	"github.com/curbvoice/curbvoice/runtime/convo/order"
	"github.com/curbvoice/curbvoice/runtime/convo/parser"
	"github.com/curbvoice/curbvoice/runtime/convo/phrase"
	"github.com/curbvoice/curbvoice/runtime/convo/respond"
	"github.com/curbvoice/curbvoice/runtime/convo/session"
	"github.com/curbvoice/curbvoice/runtime/convo/telemetry"
)

type (
	// Config carries the orchestrator's tunables.
	Config struct {
		// ConfidenceThreshold gates the classifier output. Defaults to 0.6.
		ConfidenceThreshold float64
		// SessionTTL is the session and order lifetime, refreshed each turn.
		SessionTTL time.Duration
		// TurnDeadline bounds the wait for the per-session lock. Defaults
		// to 30s.
		TurnDeadline time.Duration
		// HistoryLimit caps the retained conversation history. Defaults
		// to 20 turns.
		HistoryLimit int
	}

	// Options wires the orchestrator's collaborators.
	Options struct {
		Classifier *intent.Classifier
		Parsers    *parser.Registry
		Bus        *command.Bus
		Responder  *respond.Aggregator
		// Audio is optional; without it turns return empty audio URLs.
		Audio    *audio.Dispatcher
		Sessions session.Store
		Orders   order.Store
		Locker   session.Locker
		Clock    clock.Clock
		Logger   telemetry.Logger
		Metrics  telemetry.Metrics
		Tracer   telemetry.Tracer
	}

	// Orchestrator drives one conversation turn end to end.
	Orchestrator struct {
		classifier *intent.Classifier
		parsers    *parser.Registry
		bus        *command.Bus
		responder  *respond.Aggregator
		audio      *audio.Dispatcher
		sessions   session.Store
		orders     order.Store
		locker     session.Locker
		clock      clock.Clock
		cfg        Config
		logger     telemetry.Logger
		metrics    telemetry.Metrics
		tracer     telemetry.Tracer
	}

	// Request is one customer utterance addressed to a session.
	Request struct {
		SessionID    string
		RestaurantID int64
		UserInput    string
	}

	// TurnError describes the failure of an unsuccessful turn.
	TurnError struct {
		Category command.ErrorCategory
		Code     command.ErrorCode
		Message  string
	}

	// Result is the orchestrator's reply. It is well-formed on every path:
	// ResponseText is never empty.
	Result struct {
		Success      bool
		ResponseText string
		// AudioURL is empty when audio was not attempted or failed; the
		// text still stands.
		AudioURL string
		Intent   intent.Type
		State    session.State
		// Order is the post-turn aggregate, nil when the session has not
		// ordered yet.
		Order *order.Aggregate
		Error *TurnError
	}
)

// Configuration defaults.
const (
	DefaultConfidenceThreshold = 0.6
	DefaultTurnDeadline        = 30 * time.Second
	DefaultHistoryLimit        = 20
)

// New builds an Orchestrator.
func New(cfg Config, opts Options) (*Orchestrator, error) {
	switch {
	case opts.Classifier == nil:
		return nil, errors.New("turn: classifier is required")
	case opts.Parsers == nil:
		return nil, errors.New("turn: parser registry is required")
	case opts.Bus == nil:
		return nil, errors.New("turn: command bus is required")
	case opts.Sessions == nil:
		return nil, errors.New("turn: session store is required")
	case opts.Orders == nil:
		return nil, errors.New("turn: order store is required")
	case opts.Locker == nil:
		return nil, errors.New("turn: session locker is required")
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = session.DefaultTTL
	}
	if cfg.TurnDeadline <= 0 {
		cfg.TurnDeadline = DefaultTurnDeadline
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	responder := opts.Responder
	if responder == nil {
		responder = respond.NewAggregator(nil)
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.System{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	return &Orchestrator{
		classifier: opts.Classifier,
		parsers:    opts.Parsers,
		bus:        opts.Bus,
		responder:  responder,
		audio:      opts.Audio,
		sessions:   opts.Sessions,
		orders:     opts.Orders,
		locker:     opts.Locker,
		clock:      clk,
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		tracer:     tracer,
	}, nil
}

// ProcessTurn runs one conversation turn. It always returns a well-formed
// result; SYSTEM failures degrade to a canned retry phrase and leave the
// session live and re-entrant.
func (o *Orchestrator) ProcessTurn(ctx context.Context, req Request) Result {
	ctx, span := o.tracer.Start(ctx, "convo.process_turn")
	defer span.End()
	started := time.Now()

	lctx, cancel := context.WithTimeout(ctx, o.cfg.TurnDeadline)
	release, err := o.locker.Acquire(lctx, req.SessionID)
	cancel()
	if err != nil {
		o.logger.Warn(ctx, "session lock not acquired", "session_id", req.SessionID, "err", err.Error())
		res := o.systemFailure(ctx, req, session.StateIdle, intent.Unknown, "another turn is in progress, please retry")
		o.recordTurn(started, res)
		return res
	}
	defer release()

	res := o.runTurn(ctx, req)
	o.recordTurn(started, res)
	return res
}

func (o *Orchestrator) recordTurn(started time.Time, res Result) {
	outcome := "ok"
	if !res.Success {
		outcome = "error"
	}
	o.metrics.IncCounter(telemetry.MetricTurns, 1, "outcome", outcome)
	o.metrics.RecordTimer(telemetry.MetricTurnLatency, time.Since(started))
}

func (o *Orchestrator) runTurn(ctx context.Context, req Request) Result {
	sc := o.loadSession(ctx, req)
	agg := o.loadOrder(ctx, sc.OrderID)

	cls, err := o.classifier.Classify(ctx, req.UserInput, &sc, agg)
	if err != nil {
		o.logger.Error(ctx, "classification failed", "session_id", req.SessionID, "err", err.Error())
		return o.finishFatal(ctx, req, sc, intent.Unknown, "could not understand the request")
	}

	if cls.Confidence < o.cfg.ConfidenceThreshold {
		o.logger.Info(ctx, "confidence below threshold",
			"session_id", req.SessionID, "intent", string(cls.Intent), "confidence", cls.Confidence)
		resp := o.responder.CannedResponse(req.RestaurantID, phrase.DidntUnderstand)
		return o.finish(ctx, req, sc, cls.Intent, sc.State, nil, resp)
	}

	tr := fsm.Next(sc.State, cls.Intent)
	if !tr.IsValid {
		resp := o.responder.CannedResponse(req.RestaurantID, tr.InvalidPhrase)
		return o.finish(ctx, req, sc, cls.Intent, tr.Target, nil, resp)
	}
	target := tr.Target

	var (
		batch *command.BatchResult
		resp  respond.Response
	)
	switch {
	case tr.RequiresCommand:
		batch, resp = o.executeIntent(ctx, req, sc, cls, agg)
	case cls.Intent == intent.ConfirmOrder:
		batch, resp, target = o.confirmFlow(ctx, req, sc, agg, target)
	case cls.Intent == intent.SmallTalk:
		resp = o.responder.CannedResponse(req.RestaurantID, phrase.SmallTalkReply)
	case cls.Intent == intent.Repeat:
		resp = o.repeatResponse(req, sc)
	default:
		resp = o.responder.CannedResponse(req.RestaurantID, phrase.DidntUnderstand)
	}

	if batch != nil {
		if batch.Outcome == command.OutcomeFatalSystem {
			// A fatal turn leaves the conversation where it was.
			target = sc.State
		} else if clar := clarificationOf(batch); clar != nil {
			target = session.StateClarifying
			sc.Expectation = clar.AmbiguousItem
		} else {
			sc.Expectation = ""
		}
		if line := lastMentionedLine(batch); line != "" {
			sc.LastMentionedLine = line
		}
	}

	return o.finish(ctx, req, sc, cls.Intent, target, batch, resp)
}

// executeIntent parses the utterance and runs the resulting batch. A parser
// failure becomes a fatal batch; the reply pipeline still runs.
func (o *Orchestrator) executeIntent(ctx context.Context, req Request, sc session.Context, cls intent.Classification, agg *order.Aggregate) (*command.BatchResult, respond.Response) {
	out, err := o.parsers.Parse(ctx, parser.Input{
		RestaurantID: req.RestaurantID,
		Utterance:    cls.CleansedInput,
		Intent:       cls.Intent,
		Session:      &sc,
		Order:        agg,
	})
	var batch command.BatchResult
	if err != nil {
		o.logger.Error(ctx, "parse failed", "session_id", req.SessionID, "intent", string(cls.Intent), "err", err.Error())
		batch = command.FatalSystemBatch("could not parse the request")
	} else {
		batch = o.bus.Execute(ctx, o.execContext(req, sc), out.Commands)
	}
	return &batch, o.responder.FromBatch(req.RestaurantID, batch)
}

// confirmFlow handles CONFIRM_ORDER, the one intent the state machine routes
// without commands so the orchestrator can read the order back first.
//
// Moving into CONFIRMING reads the order summary back; confirming an empty
// order executes CONFIRM_ORDER anyway so the bus produces the business error,
// and the state rolls back. Confirming from CONFIRMING freezes the order.
func (o *Orchestrator) confirmFlow(ctx context.Context, req Request, sc session.Context, agg *order.Aggregate, target session.State) (*command.BatchResult, respond.Response, session.State) {
	execConfirm := func() *command.BatchResult {
		batch := o.bus.Execute(ctx, o.execContext(req, sc), []command.Command{command.ConfirmOrder{}})
		return &batch
	}

	if target == session.StateConfirming {
		if agg == nil || len(agg.Items) == 0 {
			batch := execConfirm()
			return batch, o.responder.FromBatch(req.RestaurantID, *batch), sc.State
		}
		return nil, o.responder.OrderSummary(agg), target
	}

	// CONFIRMING -> CLOSING: the customer confirmed the read-back.
	batch := execConfirm()
	resp := o.responder.FromBatch(req.RestaurantID, *batch)
	if batch.Outcome != command.OutcomeAllSuccess {
		target = sc.State
	}
	return batch, resp, target
}

// repeatResponse replays the previous reply verbatim.
func (o *Orchestrator) repeatResponse(req Request, sc session.Context) respond.Response {
	if n := len(sc.History); n > 0 && sc.History[n-1].ResponseText != "" {
		return respond.Response{Text: sc.History[n-1].ResponseText, Category: respond.Dynamic}
	}
	return o.responder.CannedResponse(req.RestaurantID, phrase.Greeting)
}

// finish resolves audio, persists the session mutation and shapes the result.
// It is the single exit of every valid-lock path.
func (o *Orchestrator) finish(ctx context.Context, req Request, sc session.Context, in intent.Type, target session.State, batch *command.BatchResult, resp respond.Response) Result {
	audioURL := o.resolveAudio(ctx, req.RestaurantID, resp)

	res := Result{
		Success:      true,
		ResponseText: resp.Text,
		AudioURL:     audioURL,
		Intent:       in,
		State:        target,
	}
	if batch != nil && batch.Outcome == command.OutcomeFatalSystem {
		res.Success = false
		res.Error = systemError(batch)
	}

	// Client cancellation: return the reply but persist nothing.
	if ctx.Err() != nil {
		o.logger.Info(ctx, "turn cancelled, skipping session mutation", "session_id", req.SessionID)
		res.State = sc.State
		res.Order = o.loadOrder(ctx, sc.OrderID)
		return res
	}

	o.persistSession(ctx, sc, req, in, target, resp.Text)
	res.Order = o.loadOrder(ctx, sc.OrderID)
	return res
}

// finishFatal handles failures that occur before a transition is known.
func (o *Orchestrator) finishFatal(ctx context.Context, req Request, sc session.Context, in intent.Type, message string) Result {
	batch := command.FatalSystemBatch(message)
	resp := o.responder.FromBatch(req.RestaurantID, batch)
	return o.finish(ctx, req, sc, in, sc.State, &batch, resp)
}

// systemFailure builds the reply for failures that occur before the session
// is even loaded, such as a lock timeout.
func (o *Orchestrator) systemFailure(ctx context.Context, req Request, state session.State, in intent.Type, message string) Result {
	resp := o.responder.CannedResponse(req.RestaurantID, phrase.SystemErrorRetry)
	return Result{
		Success:      false,
		ResponseText: resp.Text,
		AudioURL:     o.resolveAudio(ctx, req.RestaurantID, resp),
		Intent:       in,
		State:        state,
		Error: &TurnError{
			Category: command.CategorySystem,
			Code:     command.CodeInternalError,
			Message:  message,
		},
	}
}

func (o *Orchestrator) resolveAudio(ctx context.Context, restaurantID int64, resp respond.Response) string {
	if o.audio == nil {
		return ""
	}
	if resp.Category == respond.Canned {
		return o.audio.Canned(ctx, restaurantID, resp.PhraseID)
	}
	return o.audio.Dynamic(ctx, restaurantID, resp.Text)
}

// loadSession fetches the session or starts a fresh one bound to a new order.
func (o *Orchestrator) loadSession(ctx context.Context, req Request) session.Context {
	sc, err := o.sessions.Get(ctx, req.SessionID)
	if err == nil {
		return sc
	}
	if !errors.Is(err, session.ErrNotFound) {
		o.logger.Warn(ctx, "session load failed, starting fresh", "session_id", req.SessionID, "err", err.Error())
	}
	now := o.clock.Now()
	return session.Context{
		SessionID:    req.SessionID,
		RestaurantID: req.RestaurantID,
		OrderID:      uuid.NewString(),
		State:        session.StateIdle,
		UpdatedAt:    now,
	}
}

// loadOrder fetches the aggregate snapshot, nil when absent. Store errors
// degrade to nil since the snapshot only enriches prompts and replies.
func (o *Orchestrator) loadOrder(ctx context.Context, orderID string) *order.Aggregate {
	if orderID == "" {
		return nil
	}
	agg, err := o.orders.Get(ctx, orderID)
	if err != nil {
		if !errors.Is(err, order.ErrNotFound) {
			o.logger.Warn(ctx, "order snapshot load failed", "order_id", orderID, "err", err.Error())
		}
		return nil
	}
	return &agg
}

// persistSession appends the turn to history in FIFO order, advances the
// state and refreshes the TTL. Persistence failures are logged, not surfaced:
// the customer already has their reply.
func (o *Orchestrator) persistSession(ctx context.Context, sc session.Context, req Request, in intent.Type, target session.State, responseText string) {
	now := o.clock.Now()
	sc.History = append(sc.History, session.Turn{
		UserInput:    req.UserInput,
		ResponseText: responseText,
		Intent:       string(in),
		State:        target,
		Timestamp:    now,
	})
	if len(sc.History) > o.cfg.HistoryLimit {
		sc.History = sc.History[len(sc.History)-o.cfg.HistoryLimit:]
	}
	sc.State = target
	sc.TurnCounter++
	sc.UpdatedAt = now
	if err := o.sessions.Put(ctx, sc, o.cfg.SessionTTL); err != nil {
		o.logger.Error(ctx, "session persist failed", "session_id", sc.SessionID, "err", err.Error())
	}
}

func (o *Orchestrator) execContext(req Request, sc session.Context) command.ExecContext {
	return command.ExecContext{
		SessionID:         sc.SessionID,
		RestaurantID:      req.RestaurantID,
		OrderID:           sc.OrderID,
		LastMentionedLine: sc.LastMentionedLine,
	}
}

// clarificationOf returns the first clarification command of the batch.
func clarificationOf(batch *command.BatchResult) *command.ClarificationNeeded {
	for _, r := range batch.Results {
		if c, ok := r.Command.(command.ClarificationNeeded); ok && r.Succeeded() {
			return &c
		}
	}
	return nil
}

// lastMentionedLine returns the line ID of the last successful mutation.
func lastMentionedLine(batch *command.BatchResult) string {
	line := ""
	for _, r := range batch.Results {
		if !r.Succeeded() || r.Data == nil {
			continue
		}
		if id, ok := r.Data["line_id"].(string); ok && id != "" {
			line = id
		}
	}
	return line
}

// systemError extracts the first SYSTEM error of a fatal batch.
func systemError(batch *command.BatchResult) *TurnError {
	for _, r := range batch.Results {
		if r.Status == command.StatusError && r.ErrorCategory == command.CategorySystem {
			return &TurnError{Category: r.ErrorCategory, Code: r.ErrorCode, Message: r.Message}
		}
	}
	return &TurnError{Category: command.CategorySystem, Code: command.CodeInternalError, Message: batch.SummaryMessage}
}
