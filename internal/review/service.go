package review

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/apreview/internal/answers"
	"github.com/fyrsmithlabs/apreview/internal/branching"
	"github.com/fyrsmithlabs/apreview/internal/logging"
	"github.com/fyrsmithlabs/apreview/internal/questionnaire"
	"github.com/fyrsmithlabs/apreview/internal/session"
	"github.com/fyrsmithlabs/apreview/internal/sink"
)

// Recorder appends a finished row to the tabular sink.
type Recorder interface {
	Append(ctx context.Context, row *answers.Set) error
	// Contains reports whether a row for submissionID was already appended.
	Contains(ctx context.Context, submissionID string) (bool, error)
}

// Transmitter posts a finished row and reports the response status.
type Transmitter interface {
	Transmit(ctx context.Context, row *answers.Set) (int, error)
}

// Service runs review sessions against one questionnaire definition.
type Service struct {
	def         *questionnaire.Definition
	controller  *branching.Controller
	store       session.Store
	recorder    Recorder
	transmitter Transmitter

	logger  *logging.Logger
	tracer  trace.Tracer
	metrics *Metrics
	now     func() time.Time
	locks   *keyedMutex

	// accepted holds submission IDs the webhook accepted whose delivery
	// state could not be saved.
	accepted sync.Map
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithTracer sets the tracer used for service spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithMetrics sets the OTEL instruments.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires a review service. The recorder and transmitter are
// required.
func NewService(def *questionnaire.Definition, store session.Store, recorder Recorder, transmitter Transmitter, opts ...Option) (*Service, error) {
	if def == nil {
		return nil, errors.New("questionnaire definition is required")
	}
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if recorder == nil {
		return nil, errors.New("recorder is required")
	}
	if transmitter == nil {
		return nil, errors.New("transmitter is required")
	}

	controller, err := branching.NewController(def.Families()...)
	if err != nil {
		return nil, fmt.Errorf("building growth controller: %w", err)
	}

	svc := &Service{
		def:         def,
		controller:  controller,
		store:       store,
		recorder:    recorder,
		transmitter: transmitter,
		now:         time.Now,
		locks:       newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = logging.NewNop()
	}
	if svc.tracer == nil {
		svc.tracer = otel.Tracer(InstrumentationName)
	}
	return svc, nil
}

// Definition returns the questionnaire the service renders.
func (svc *Service) Definition() *questionnaire.Definition {
	return svc.def
}

// Questionnaire summarizes the definition and its full column schema.
func (svc *Service) Questionnaire() *Questionnaire {
	q := &Questionnaire{
		Title:    svc.def.Title,
		Families: svc.families(nil),
		Columns:  svc.def.Schema(),
	}
	for _, p := range svc.def.Parts {
		q.Parts = append(q.Parts, PartSummary{
			ID:          p.ID,
			Title:       p.Title,
			Description: p.Description,
			Repeating:   p.Repeating(),
		})
	}
	return q
}

// Create starts a session with every family at its floor.
func (svc *Service) Create(ctx context.Context) (*View, error) {
	ctx, span := svc.tracer.Start(ctx, "review.create")
	defer span.End()

	s := session.New(svc.now())
	svc.controller.Init(s.Counts)
	if err := svc.store.Create(ctx, s); err != nil {
		return nil, spanError(span, fmt.Errorf("creating session: %w", err))
	}
	span.SetAttributes(attribute.String("session.id", s.ID))

	svc.metrics.recordCreated(ctx)
	svc.refreshActive(ctx)
	svc.logger.Info(logging.WithSessionID(ctx, s.ID), "review session started")
	return svc.render(s, nil), nil
}

// Get renders a session and refreshes the active session gauge.
func (svc *Service) Get(ctx context.Context, id string) (*View, error) {
	s, err := svc.store.Get(ctx, id)
	svc.refreshActive(ctx)
	if err != nil {
		return nil, err
	}
	return svc.render(s, nil), nil
}

// Delete abandons a session.
func (svc *Service) Delete(ctx context.Context, id string) error {
	unlock := svc.locks.Lock(id)
	defer unlock()

	if err := svc.store.Delete(ctx, id); err != nil {
		return err
	}
	svc.refreshActive(ctx)
	svc.logger.Info(logging.WithSessionID(ctx, id), "review session abandoned")
	return nil
}

// Apply records answers keyed by widget ID, evaluates block growth and
// renders the result. A zero value clears an answer.
//
// The batch is all or nothing. Answers may target blocks that only appear
// because an earlier answer in the same batch grew their family.
func (svc *Service) Apply(ctx context.Context, id string, updates map[string]answers.Value) (*View, error) {
	ctx = logging.WithSessionID(ctx, id)
	ctx, span := svc.tracer.Start(ctx, "review.apply", trace.WithAttributes(
		attribute.String("session.id", id),
		attribute.Int("answers.count", len(updates)),
	))
	defer span.End()

	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if err := svc.validate(k, updates[k]); err != nil {
			return nil, spanError(span, err)
		}
	}

	unlock := svc.locks.Lock(id)
	defer unlock()

	s, err := svc.store.Get(ctx, id)
	svc.refreshActive(ctx)
	if err != nil {
		return nil, spanError(span, err)
	}
	if s.Submitted() {
		return nil, spanError(span, ErrAlreadySubmitted)
	}

	var grown []GrowthRecord
	pending := keys
	for {
		var rest []string
		for _, k := range pending {
			if svc.def.Rendered(k, s.Counts) {
				s.Set(k, updates[k])
				svc.logger.Trace(ctx, "answer applied",
					zap.String("field", k),
					zap.Bool("cleared", updates[k].IsZero()),
				)
				continue
			}
			rest = append(rest, k)
		}
		progress := len(rest) < len(pending)
		pending = rest

		growth := svc.controller.Evaluate(s.Counts, s.TextLookup)
		svc.logger.Trace(ctx, "growth evaluated",
			zap.Int("grown", len(growth)),
			zap.Int("pending", len(pending)),
		)
		for _, g := range growth {
			grown = append(grown, GrowthRecord(g))
			svc.metrics.recordGrowth(ctx, g.Family)
			svc.logger.Debug(ctx, "block family grew",
				zap.String("family", g.Family),
				zap.Int("from", g.From),
				zap.Int("to", g.To),
			)
		}

		if len(pending) == 0 {
			break
		}
		if !progress && len(growth) == 0 {
			return nil, spanError(span, unknownField(pending[0], "block is not rendered"))
		}
	}

	s.UpdatedAt = svc.now()
	if err := svc.store.Save(ctx, s); err != nil {
		return nil, spanError(span, fmt.Errorf("saving session: %w", err))
	}
	svc.metrics.recordApplied(ctx, len(keys))
	return svc.render(s, grown), nil
}

// validate checks one answer against its question's domain.
func (svc *Service) validate(id string, v answers.Value) error {
	f, ok := svc.def.Field(id)
	if !ok {
		return unknownField(id, "not in questionnaire")
	}
	if v.IsZero() {
		return nil
	}
	switch f.Kind {
	case questionnaire.KindText, questionnaire.KindTextArea:
		if v.IsMulti() {
			return invalidAnswer(id, "expects text")
		}
	case questionnaire.KindSingle:
		if v.IsMulti() {
			return invalidAnswer(id, "expects one choice")
		}
		if !slices.Contains(f.Choices, v.String()) {
			return invalidAnswer(id, fmt.Sprintf("%q is not a choice", v.String()))
		}
	case questionnaire.KindMulti:
		if !v.IsMulti() {
			return invalidAnswer(id, "expects a list of choices")
		}
		for _, item := range v.List() {
			if !slices.Contains(f.Choices, item) {
				return invalidAnswer(id, fmt.Sprintf("%q is not a choice", item))
			}
		}
	}
	return nil
}

// Submit builds the answer set from every rendered block, appends it to the
// tabular sink and posts it to the webhook once.
//
// The submission is saved on the session before its row is appended, so a
// row is written at most once per submission ID even when a later save
// fails; submitting again resumes the retained submission. Nothing is
// written when the set cannot be built. A failed append leaves the session
// editable. A failed delivery keeps the submission on the session, returns
// its receipt along with an ErrDelivery error, and can be retried with Retry.
func (svc *Service) Submit(ctx context.Context, id string) (*Receipt, error) {
	start := svc.now()
	ctx = logging.WithSessionID(ctx, id)
	ctx, span := svc.tracer.Start(ctx, "review.submit", trace.WithAttributes(
		attribute.String("session.id", id),
	))
	defer span.End()

	outcome := "error"
	defer func() {
		svc.metrics.recordSubmit(ctx, outcome, svc.now().Sub(start))
	}()

	unlock := svc.locks.Lock(id)
	defer unlock()

	s, err := svc.store.Get(ctx, id)
	if err != nil {
		return nil, spanError(span, err)
	}
	if s.Recorded() {
		outcome = "duplicate"
		return nil, spanError(span, ErrAlreadySubmitted)
	}

	sub := s.Submission
	if sub == nil {
		sub, err = svc.assemble(ctx, s)
		if err != nil {
			if errors.Is(err, answers.ErrMissingRequiredField) {
				outcome = "incomplete"
			}
			return nil, spanError(span, err)
		}
		s.Submission = sub
		s.Delivery = session.Delivery{}
		s.UpdatedAt = svc.now()
		if err := svc.store.Save(ctx, s); err != nil {
			return nil, spanError(span, fmt.Errorf("saving session: %w", err))
		}
	}
	ctx = logging.WithSubmissionID(ctx, sub.ID)
	span.SetAttributes(attribute.String("submission.id", sub.ID))

	row := sub.Row()
	if err := svc.record(ctx, sub.ID, row); err != nil {
		outcome = "record_failed"
		svc.logger.Error(ctx, "recording submission failed", zap.Error(err))
		s.Submission = nil
		s.Delivery = session.Delivery{}
		if serr := svc.store.Save(context.WithoutCancel(ctx), s); serr != nil {
			svc.logger.Error(ctx, "reopening session failed", zap.Error(serr))
		}
		return nil, spanError(span, fmt.Errorf("%w: %w", ErrRecord, err))
	}
	LastSubmission.Set(float64(sub.Timestamp.Unix()))

	s.Delivery.Recorded = true
	s.UpdatedAt = svc.now()
	if err := svc.store.Save(ctx, s); err != nil {
		svc.logger.Error(ctx, "saving submitted session failed", zap.Error(err))
		return nil, spanError(span, fmt.Errorf("saving session: %w", err))
	}
	svc.logger.Info(ctx, "submission recorded",
		zap.String("program", sub.Reviewer.Program),
		zap.Int("columns", row.Len()),
	)

	if err := svc.deliver(ctx, s, row); err != nil {
		outcome = "delivery_failed"
		return receiptOf(s), spanError(span, fmt.Errorf("%w: %w", ErrDelivery, err))
	}
	outcome = "success"
	return receiptOf(s), nil
}

// assemble accumulates every rendered block of s into a new submission.
func (svc *Service) assemble(ctx context.Context, s *session.Session) (*answers.Submission, error) {
	lookup := questionnaire.Lookup(s.Lookup)
	acc := answers.NewAccumulator()
	if err := questionnaire.Accumulate(acc, svc.def.Blocks(s.Counts), lookup); err != nil {
		var dup *answers.DuplicateFieldError
		if errors.As(err, &dup) {
			svc.logger.Error(ctx, "duplicate field in answer set",
				zap.String("field", dup.Field),
				zap.Int("block", dup.Block),
				zap.Int("previous_block", dup.PreviousBlock),
			)
		}
		return nil, err
	}
	return acc.Finalize(svc.def.Reviewer(lookup), svc.now())
}

// record appends row unless the sink already holds submissionID.
func (svc *Service) record(ctx context.Context, submissionID string, row *answers.Set) error {
	done, err := svc.recorder.Contains(ctx, submissionID)
	if err != nil {
		return err
	}
	if done {
		svc.logger.Info(ctx, "submission row already recorded")
		return nil
	}
	if err := svc.recorder.Append(ctx, row); err != nil {
		return err
	}
	RowsRecorded.Inc()
	return nil
}

// Retry posts the retained submission again. No row is appended.
func (svc *Service) Retry(ctx context.Context, id string) (*Receipt, error) {
	ctx = logging.WithSessionID(ctx, id)
	ctx, span := svc.tracer.Start(ctx, "review.retry", trace.WithAttributes(
		attribute.String("session.id", id),
	))
	defer span.End()

	unlock := svc.locks.Lock(id)
	defer unlock()

	s, err := svc.store.Get(ctx, id)
	if err != nil {
		return nil, spanError(span, err)
	}
	if !s.Recorded() {
		return nil, spanError(span, ErrNotSubmitted)
	}
	ctx = logging.WithSubmissionID(ctx, s.Submission.ID)

	if !s.Delivery.Delivered {
		if _, ok := svc.accepted.Load(s.Submission.ID); ok {
			// The webhook accepted this row but the session never learned it.
			s.Delivery.Delivered = true
			s.Delivery.LastError = ""
			if err := svc.store.Save(ctx, s); err == nil {
				svc.accepted.Delete(s.Submission.ID)
			}
		}
	}
	if s.Delivery.Delivered {
		return receiptOf(s), spanError(span, ErrAlreadyDelivered)
	}

	if err := svc.deliver(ctx, s, s.Submission.Row()); err != nil {
		return receiptOf(s), spanError(span, fmt.Errorf("%w: %w", ErrDelivery, err))
	}
	return receiptOf(s), nil
}

// deliver makes one webhook attempt and persists its outcome on s.
func (svc *Service) deliver(ctx context.Context, s *session.Session, row *answers.Set) error {
	start := svc.now()
	code, err := svc.transmitter.Transmit(ctx, row)

	s.Delivery.Attempts++
	s.Delivery.StatusCode = code
	s.Delivery.LastTry = svc.now()
	s.UpdatedAt = s.Delivery.LastTry

	status := "error"
	if code != 0 {
		status = strconv.Itoa(code)
	}
	DeliveryStatus.WithLabelValues(status).Inc()

	outcome := "success"
	if err != nil {
		outcome = "failure"
		s.Delivery.LastError = err.Error()
		svc.logger.Warn(ctx, "webhook delivery failed",
			zap.Int("attempt", s.Delivery.Attempts),
			zap.Int("status_code", code),
			zap.Error(err),
		)
	} else {
		s.Delivery.Delivered = true
		s.Delivery.LastError = ""
		svc.logger.Info(ctx, "submission delivered",
			zap.Int("attempt", s.Delivery.Attempts),
			zap.Int("status_code", code),
		)
	}
	svc.metrics.recordDelivery(ctx, outcome, svc.now().Sub(start))

	// The attempt is recorded even when the request context is gone.
	if serr := svc.store.Save(context.WithoutCancel(ctx), s); serr != nil {
		svc.logger.Error(ctx, "saving delivery state failed", zap.Error(serr))
		if err == nil {
			svc.accepted.Store(s.Submission.ID, struct{}{})
		}
	}
	return err
}

// Workbook renders the retained submission as an Excel workbook and returns
// it with a download file name.
func (svc *Service) Workbook(ctx context.Context, id string) ([]byte, string, error) {
	s, err := svc.store.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if !s.Recorded() {
		return nil, "", ErrNotSubmitted
	}
	data, err := sink.Workbook(s.Submission.Row())
	if err != nil {
		return nil, "", fmt.Errorf("rendering workbook: %w", err)
	}
	return data, "submission-" + s.Submission.ID + ".xlsx", nil
}

func (svc *Service) refreshActive(ctx context.Context) {
	n, err := svc.store.Count(ctx)
	if err != nil {
		svc.logger.Warn(ctx, "counting sessions failed", zap.Error(err))
		return
	}
	ActiveSessions.Set(float64(n))
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
