package identify

import (
	"context"
	"image"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"cardscan/internal/catalog"
	"cardscan/internal/extract"
	"cardscan/internal/logging"
	"cardscan/internal/namecache"
	"cardscan/internal/patterns"
	"cardscan/internal/scanstats"
	"cardscan/internal/services"
)

// ImageMatcher finds the catalog card closest to an image.
type ImageMatcher interface {
	Match(ctx context.Context, img image.Image, threshold int) (catalog.Match, bool)
	MatchBytes(ctx context.Context, data []byte, threshold int) (catalog.Match, bool)
}

// PatternLearner resolves and learns text to name mappings.
type PatternLearner interface {
	Lookup(ctx context.Context, raw string) (patterns.Resolution, bool)
	Record(ctx context.Context, raw, name string, success bool) error
	Count(ctx context.Context) (int, error)
	CountAbove(ctx context.Context, threshold float64) (int, error)
}

// NameLookup ranks cached names against text.
type NameLookup interface {
	Lookup(ctx context.Context, raw string, threshold float64) []namecache.Candidate
	Count(ctx context.Context) (int, error)
}

// CorrectionRecorder stores operator overrides.
type CorrectionRecorder interface {
	Record(ctx context.Context, raw, corrected, cardID string) error
	Count(ctx context.Context) (int, error)
}

// StatRecorder is the scan audit log.
type StatRecorder interface {
	Record(ctx context.Context, kind scanstats.Kind, cardName string, success bool) error
	Total(ctx context.Context) (int, error)
	Successful(ctx context.Context) (int, error)
}

// Deps are the stores the engine reads and writes. Matcher may be nil when
// no catalog is available.
type Deps struct {
	Matcher     ImageMatcher
	Patterns    PatternLearner
	Names       NameLookup
	Corrections CorrectionRecorder
	Stats       StatRecorder
}

// Options tunes arbitration. Zero values use the defaults.
type Options struct {
	HashThreshold        int
	ImageConfidenceFloor float64
	FuzzyThreshold       float64
	Now                  func() time.Time
	NewID                func() string
}

const defaultImageConfidenceFloor = 50

// Capture is one captured card. Image takes precedence over ImageBytes for
// matching; ImageBytes is kept on the session for display.
type Capture struct {
	Image      image.Image
	ImageBytes []byte
	RawText    string
	Source     string
}

// Engine runs identification passes.
type Engine struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
}

// NewEngine validates deps and applies option defaults.
func NewEngine(deps Deps, opts Options, logger *slog.Logger) (*Engine, error) {
	switch {
	case deps.Patterns == nil:
		return nil, services.Wrap(services.ErrConfiguration, "identify", "new engine", "Pattern learner is required", nil)
	case deps.Names == nil:
		return nil, services.Wrap(services.ErrConfiguration, "identify", "new engine", "Name cache is required", nil)
	case deps.Corrections == nil:
		return nil, services.Wrap(services.ErrConfiguration, "identify", "new engine", "Correction ledger is required", nil)
	case deps.Stats == nil:
		return nil, services.Wrap(services.ErrConfiguration, "identify", "new engine", "Scan stats are required", nil)
	}
	if opts.HashThreshold <= 0 {
		opts.HashThreshold = catalog.DefaultThreshold
	}
	if opts.ImageConfidenceFloor <= 0 {
		opts.ImageConfidenceFloor = defaultImageConfidenceFloor
	}
	if opts.FuzzyThreshold <= 0 {
		opts.FuzzyThreshold = namecache.DefaultThreshold
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}
	return &Engine{deps: deps, opts: opts, logger: logging.NewComponentLogger(logger, "identify")}, nil
}

// Identify runs one pass over a capture and returns a pending session. It
// never fails; missing signals are reported on the session.
func (e *Engine) Identify(ctx context.Context, capture Capture) *Session {
	session := &Session{
		id:        e.opts.NewID(),
		createdAt: e.opts.Now(),
		source:    strings.TrimSpace(capture.Source),
		rawText:   strings.TrimSpace(capture.RawText),
		image:     capture.ImageBytes,
		state:     StatePending,
	}
	ctx = services.WithSessionID(ctx, session.id)

	hashDone := make(chan *HashSignal, 1)
	go func() {
		hashDone <- e.matchImage(services.WithStage(ctx, "match"), capture)
	}()

	textCtx := services.WithStage(ctx, "text")
	session.text = e.textSignal(textCtx, session.rawText)
	session.details = extract.ParseDetails(session.rawText)
	session.hash = <-hashDone
	session.recommendation = arbitrate(session.text, session.hash, e.opts.ImageConfidenceFloor)

	logger := logging.WithContext(services.WithStage(ctx, "fusion"), e.logger)
	attrs := logging.DecisionAttrs("recommendation", string(session.recommendation.Source), decisionReason(session))
	attrs = append(attrs, logging.CardAttrs(session.recommendation.CardID, session.recommendation.Name)...)
	if session.hash != nil {
		attrs = append(attrs, logging.Int("distance", session.hash.Distance), logging.Float64("confidence", session.hash.Confidence))
	}
	logger.Info("identification ready", logging.Args(attrs...)...)
	return session
}

func decisionReason(s *Session) string {
	switch s.recommendation.Source {
	case SourceImageHash:
		return "image confidence above floor"
	case SourceText:
		if s.hash != nil {
			return "image confidence at or below floor"
		}
		return "no image match"
	default:
		return "no image match and no text candidate"
	}
}

func (e *Engine) matchImage(ctx context.Context, capture Capture) *HashSignal {
	if e.deps.Matcher == nil {
		return nil
	}
	var (
		match catalog.Match
		ok    bool
	)
	switch {
	case capture.Image != nil:
		match, ok = e.deps.Matcher.Match(ctx, capture.Image, e.opts.HashThreshold)
	case len(capture.ImageBytes) > 0:
		match, ok = e.deps.Matcher.MatchBytes(ctx, capture.ImageBytes, e.opts.HashThreshold)
	}
	if !ok {
		return nil
	}
	return hashSignal(match)
}

// textSignal applies extraction, then the learned patterns, then the fuzzy
// cache. The fallbacks only run when extraction yields no usable name.
func (e *Engine) textSignal(ctx context.Context, raw string) TextSignal {
	var signal TextSignal
	if best, ok := extract.Best(raw); ok {
		cand := best
		signal.Extracted = &cand
		if best.Accepted() {
			signal.Name = best.Text
			signal.Origin = OriginExtracted
			signal.Score = best.AlphaRatio
			return signal
		}
		signal.Weak = true
	}
	if strings.TrimSpace(raw) == "" {
		return signal
	}

	if res, ok := e.deps.Patterns.Lookup(ctx, raw); ok {
		signal.Name = res.Name
		signal.Origin = OriginLearned
		signal.Score = res.Score
		return signal
	}
	if cands := e.deps.Names.Lookup(ctx, raw, e.opts.FuzzyThreshold); len(cands) > 0 {
		signal.Name = cands[0].Name
		signal.Origin = OriginFuzzy
		signal.Score = cands[0].Score
		signal.Alternatives = cands
	}
	return signal
}

// Confirm accepts name as the card's identity. An empty name takes the
// recommendation. method text also teaches the pattern learner. Store
// failures are logged; only invalid input and closed sessions return errors.
func (e *Engine) Confirm(ctx context.Context, s *Session, name string, method scanstats.Kind) error {
	name = strings.TrimSpace(name)
	if name == "" {
		name = s.recommendation.Name
	}
	if name == "" {
		return services.Wrap(services.ErrValidation, "identify", "confirm", "No card name to confirm; use a manual correction", nil)
	}
	if method == "" {
		method = defaultMethod(s.recommendation.Source)
	}
	switch method {
	case scanstats.KindText, scanstats.KindManual, scanstats.KindImageHash:
	default:
		return services.Wrap(services.ErrValidation, "identify", "confirm", "Unsupported confirm method "+string(method), nil)
	}

	ctx = services.WithStage(services.WithSessionID(ctx, s.id), "confirm")
	cardID := ""
	if method == scanstats.KindImageHash && s.hash != nil && s.hash.Name == name {
		cardID = s.hash.CardID
	}
	res := &Resolution{Name: name, CardID: cardID, Method: method, At: e.opts.Now()}
	return s.transition(StateConfirmed, res, func() {
		e.warnOnError(ctx, e.deps.Stats.Record(ctx, method, name, true), "scan stat write failed", "statistics miss this scan")
		if method == scanstats.KindText && strings.TrimSpace(s.rawText) != "" {
			e.warnOnError(ctx, e.deps.Patterns.Record(ctx, s.rawText, name, true), "pattern update failed", "this confirmation is not learned")
		}
		attrs := append(logging.CardAttrs(cardID, name), logging.String("method", string(method)))
		logging.WithContext(ctx, e.logger).Info("identification confirmed", logging.Args(attrs...)...)
	})
}

func defaultMethod(source Source) scanstats.Kind {
	if source == SourceImageHash {
		return scanstats.KindImageHash
	}
	return scanstats.KindText
}

// Correct records an operator override for the session's text.
func (e *Engine) Correct(ctx context.Context, s *Session, name, cardID string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return services.Wrap(services.ErrValidation, "identify", "correct", "Corrected name is required", nil)
	}
	cardID = strings.TrimSpace(cardID)
	ctx = services.WithStage(services.WithSessionID(ctx, s.id), "correct")
	res := &Resolution{Name: name, CardID: cardID, Method: scanstats.KindCorrection, At: e.opts.Now()}
	return s.transition(StateCorrected, res, func() {
		if strings.TrimSpace(s.rawText) != "" {
			e.warnOnError(ctx, e.deps.Corrections.Record(ctx, s.rawText, name, cardID), "correction write failed", "this correction is not learned")
		}
		e.warnOnError(ctx, e.deps.Stats.Record(ctx, scanstats.KindCorrection, name, true), "scan stat write failed", "statistics miss this scan")
		attrs := append(logging.CardAttrs(cardID, name), logging.String("raw_text", s.rawText))
		logging.WithContext(ctx, e.logger).Info("identification corrected", logging.Args(attrs...)...)
	})
}

// Retry closes the session so the caller can capture again.
func (e *Engine) Retry(ctx context.Context, s *Session) error {
	ctx = services.WithStage(services.WithSessionID(ctx, s.id), "retry")
	return s.transition(StateRetried, &Resolution{At: e.opts.Now()}, func() {
		logging.WithContext(ctx, e.logger).Info("identification retried")
	})
}

// Cancel closes the session without recording anything.
func (e *Engine) Cancel(s *Session) error {
	return s.transition(StateCancelled, &Resolution{At: e.opts.Now()}, nil)
}

func (e *Engine) warnOnError(ctx context.Context, err error, msg, impact string) {
	if err == nil {
		return
	}
	logging.WarnWithContext(logging.WithContext(ctx, e.logger), msg, "learning_write_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check learning.db"),
		logging.String(logging.FieldImpact, impact),
	)
}
