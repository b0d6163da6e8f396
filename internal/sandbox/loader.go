package sandbox

import (
	"fmt"
	"time"
)

// RiskTier buckets a load attempt by how many pattern-check warnings it
// accumulated. Hard deny-list violations never reach a tier: they abort
// the load outright.
type RiskTier string

const (
	RiskSafe   RiskTier = "safe"
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

func classify(warningCount int) RiskTier {
	switch {
	case warningCount > 5:
		return RiskHigh
	case warningCount > 2:
		return RiskMedium
	case warningCount > 0:
		return RiskLow
	default:
		return RiskSafe
	}
}

// LoadRequest describes one attempt to load a dynamic strategy: its
// declared identity, source, expected digest, and the permission set it is
// asking to exercise.
type LoadRequest struct {
	StrategyID   string
	Source       []byte
	ExpectedHash string
	Strict       bool
	Permissions  []Permission
}

// LoadResult is the outcome of a successful four-stage load: the risk tier
// the source was classified at and the non-fatal warnings collected along
// the way (populated even in lenient mode, where warnings don't fail the
// load).
type LoadResult struct {
	StrategyID string
	RiskTier   RiskTier
	Warnings   []string
	LoadedAt   time.Time
}

// Loader orchestrates the four serial load stages: integrity, static
// analysis, permission check, and (by way of build) the sandboxed
// instantiation of the strategy itself. Any stage failure aborts the load
// and appends one audit record before returning.
type Loader struct {
	Registry *Registry
	Audit    *Logger
}

// NewLoader builds a Loader backed by the given permission registry and
// audit log.
func NewLoader(registry *Registry, audit *Logger) *Loader {
	return &Loader{Registry: registry, Audit: audit}
}

// Load runs stages 1-3 (integrity, static analysis, permission check) and,
// on success, invokes build to perform stage 4 (sandboxed instantiation).
// build receives the request's source so the caller can parse/compile it
// into a concrete StockSelector/EntryStrategy/ExitStrategy and run the
// parameter validation contract (BindParams) as part of "instantiate it
// with the supplied params, which re-runs the schema check".
func (l *Loader) Load(req LoadRequest, build func(source []byte) error) (LoadResult, error) {
	now := time.Now().UTC()

	// Stage 1: integrity.
	if err := VerifyHash(req.Source, req.ExpectedHash); err != nil {
		l.logEvent(Event{StrategyID: req.StrategyID, Type: EventHashRejected, Detail: err.Error()})
		return LoadResult{}, fmt.Errorf("sandbox: stage 1 integrity: %w", err)
	}
	l.logEvent(Event{StrategyID: req.StrategyID, Type: EventHashVerified, Timestamp: now})

	// Stage 2+3: AST static analysis plus the substring pattern check,
	// collected in one Analyze pass. Stage 2's deny-lists (forbidden
	// import, builtin, selector) are unconditional: a hard violation
	// aborts the load in every mode. Only stage 3's pattern-check hits
	// are strict/lenient-gated.
	violations, err := Analyze(req.Source)
	if err != nil {
		l.logEvent(Event{StrategyID: req.StrategyID, Type: EventViolation, Detail: "sanitize_failed: " + err.Error()})
		return LoadResult{}, fmt.Errorf("sandbox: stage 2 static analysis: %w", err)
	}

	var hard, soft []Violation
	for _, v := range violations {
		if v.Hard() {
			hard = append(hard, v)
		} else {
			soft = append(soft, v)
		}
	}

	if len(hard) > 0 {
		l.logEvent(Event{StrategyID: req.StrategyID, Type: EventViolation, Detail: fmt.Sprintf("sanitize_failed: %d forbidden construct(s), first: %s", len(hard), hard[0])})
		return LoadResult{}, fmt.Errorf("sandbox: stage 2 static analysis: %d forbidden construct(s), first: %s", len(hard), hard[0])
	}

	// Stage 3: pattern-check hits accumulate toward the risk tier; strict
	// mode rejects once the tier reaches medium, lenient mode records the
	// warnings and proceeds.
	warnings := make([]string, 0, len(soft))
	for _, v := range soft {
		warnings = append(warnings, v.String())
	}
	tier := classify(len(warnings))

	if len(soft) > 0 {
		l.logEvent(Event{StrategyID: req.StrategyID, Type: EventViolation, Detail: fmt.Sprintf("pattern check: %d warning(s) recorded, risk tier %s", len(soft), tier)})
	} else {
		l.logEvent(Event{StrategyID: req.StrategyID, Type: EventAnalyzed, Detail: "no forbidden constructs"})
	}

	if req.Strict && (tier == RiskMedium || tier == RiskHigh) {
		l.logEvent(Event{StrategyID: req.StrategyID, Type: EventViolation, Detail: fmt.Sprintf("sanitize_failed: risk tier %s rejected in strict mode", tier)})
		return LoadResult{}, fmt.Errorf("sandbox: stage 3 pattern check: risk tier %s is rejected in strict mode", tier)
	}

	// Permission check.
	for _, perm := range req.Permissions {
		if err := l.Registry.Check(req.StrategyID, perm); err != nil {
			l.logEvent(Event{StrategyID: req.StrategyID, Type: EventDenied, Detail: err.Error()})
			return LoadResult{}, fmt.Errorf("sandbox: stage 3 permission check: %w", err)
		}
	}
	l.logEvent(Event{StrategyID: req.StrategyID, Type: EventPermitted, Detail: fmt.Sprintf("%d permission(s) granted", len(req.Permissions))})

	// Stage 4: sandboxed build/instantiation, including the parameter
	// schema re-check (performed by the caller's build func via BindParams).
	if err := build(req.Source); err != nil {
		l.logEvent(Event{StrategyID: req.StrategyID, Type: EventExecutionFail, Detail: err.Error()})
		return LoadResult{}, fmt.Errorf("sandbox: stage 4 sandboxed build: %w", err)
	}
	l.logEvent(Event{StrategyID: req.StrategyID, Type: EventExecuted, Detail: "sandboxed build succeeded"})

	return LoadResult{StrategyID: req.StrategyID, RiskTier: tier, Warnings: warnings, LoadedAt: now}, nil
}

func (l *Loader) logEvent(ev Event) {
	if l.Audit == nil {
		return
	}
	// Audit logging failures must never mask the stage's own result; the
	// loader logs best-effort and returns the stage's real error/success.
	_ = l.Audit.Log(ev)
}
