package sandbox

import (
	"strings"
	"testing"
)

const safeStrategySource = `package dynamic

func Score(x float64) float64 {
	return x * 2
}
`

const forbiddenImportSource = `package dynamic

import "os"

func Score(x float64) float64 {
	os.Exit(1)
	return x
}
`

func TestLoaderAcceptsSafeStrategy(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(NewRegistry(Lenient), NewLogger(dir))

	source := []byte(safeStrategySource)
	req := LoadRequest{
		StrategyID:   "safe-momentum",
		Source:       source,
		ExpectedHash: HashSource(source),
	}
	result, err := loader.Load(req, func([]byte) error { return nil })
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if result.RiskTier != RiskSafe {
		t.Errorf("got risk tier %s, want %s", result.RiskTier, RiskSafe)
	}

	events, err := loader.Audit.Query(Filter{StrategyID: "safe-momentum"})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("expected audit events for successful load, got none")
	}
}

func TestLoaderRejectsForbiddenImport(t *testing.T) {
	// The import deny-list is unconditional: strict and lenient mode must
	// both reject at stage 2 before the build callback is ever reached.
	for _, strict := range []bool{true, false} {
		name := "lenient"
		if strict {
			name = "strict"
		}
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			loader := NewLoader(NewRegistry(Lenient), NewLogger(dir))

			source := []byte(forbiddenImportSource)
			req := LoadRequest{
				StrategyID:   "evil-strategy",
				Source:       source,
				ExpectedHash: HashSource(source),
				Strict:       strict,
			}
			_, err := loader.Load(req, func([]byte) error {
				t.Fatal("build should not be reached when static analysis fails")
				return nil
			})
			if err == nil {
				t.Fatal("expected Load() to fail for a forbidden os import")
			}
			if !strings.Contains(err.Error(), "static analysis") {
				t.Errorf("error should identify the static analysis stage, got: %v", err)
			}

			events, err := loader.Audit.Query(Filter{StrategyID: "evil-strategy", Type: EventViolation})
			if err != nil {
				t.Fatalf("Query() error: %v", err)
			}
			if len(events) != 1 {
				t.Fatalf("got %d violation events, want 1", len(events))
			}
			if !strings.Contains(events[0].Detail, "sanitize_failed") {
				t.Errorf("violation detail should be tagged sanitize_failed, got: %s", events[0].Detail)
			}
		})
	}
}

func TestLoaderRejectsHashMismatch(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(NewRegistry(Lenient), NewLogger(dir))

	source := []byte(safeStrategySource)
	req := LoadRequest{
		StrategyID:   "tampered",
		Source:       source,
		ExpectedHash: "deadbeef",
	}
	_, err := loader.Load(req, func([]byte) error { return nil })
	if err == nil {
		t.Fatal("expected Load() to fail on hash mismatch")
	}
}

// mediumRiskSource parses cleanly and trips no AST deny-list, but carries
// three forbidden substrings in string literals (one each from the
// filesystem, network, and system pattern groups) — enough warnings to
// classify as medium risk.
const mediumRiskSource = `package dynamic

var notes = []string{
	"uses os.Open for caching",
	"falls back to http.Get",
	"shells out via exec.Command",
}

func Score(x float64) float64 {
	return x
}
`

func TestLoaderStrictModeRejectsMediumRiskTier(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(NewRegistry(Lenient), NewLogger(dir))

	source := []byte(mediumRiskSource)
	req := LoadRequest{
		StrategyID:   "risky",
		Source:       source,
		ExpectedHash: HashSource(source),
		Strict:       true,
	}
	_, err := loader.Load(req, func([]byte) error {
		t.Fatal("build should not be reached for a medium-risk strict load")
		return nil
	})
	if err == nil {
		t.Fatal("expected strict mode to reject a medium-risk load")
	}
	if !strings.Contains(err.Error(), string(RiskMedium)) {
		t.Errorf("error should name the medium risk tier, got: %v", err)
	}
}

func TestLoaderLenientModeRecordsMediumRiskWarnings(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(NewRegistry(Lenient), NewLogger(dir))

	source := []byte(mediumRiskSource)
	req := LoadRequest{
		StrategyID:   "risky-lenient",
		Source:       source,
		ExpectedHash: HashSource(source),
	}
	result, err := loader.Load(req, func([]byte) error { return nil })
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if result.RiskTier != RiskMedium {
		t.Errorf("got risk tier %s, want %s", result.RiskTier, RiskMedium)
	}
	if len(result.Warnings) != 3 {
		t.Errorf("got %d warnings, want 3: %v", len(result.Warnings), result.Warnings)
	}
}

func TestLoaderStrictModeToleratesLowRiskTier(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(NewRegistry(Lenient), NewLogger(dir))

	source := []byte(`package dynamic

var note = "uses os.Open for caching"

func Score(x float64) float64 {
	return x
}
`)
	req := LoadRequest{
		StrategyID:   "mildly-risky",
		Source:       source,
		ExpectedHash: HashSource(source),
		Strict:       true,
	}
	result, err := loader.Load(req, func([]byte) error { return nil })
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if result.RiskTier != RiskLow {
		t.Errorf("got risk tier %s, want %s", result.RiskTier, RiskLow)
	}
}

func TestLoaderEnforcesPermissions(t *testing.T) {
	dir := t.TempDir()
	registry := NewRegistry(Strict)
	loader := NewLoader(registry, NewLogger(dir))

	source := []byte(safeStrategySource)
	req := LoadRequest{
		StrategyID:   "needs-orders",
		Source:       source,
		ExpectedHash: HashSource(source),
		Permissions:  []Permission{PermEmitOrders},
	}
	_, err := loader.Load(req, func([]byte) error { return nil })
	if err == nil {
		t.Fatal("expected Load() to fail: strategy has no granted permissions")
	}

	registry.Grant("needs-orders", PermEmitOrders)
	result, err := loader.Load(req, func([]byte) error { return nil })
	if err != nil {
		t.Fatalf("Load() after grant: unexpected error: %v", err)
	}
	if result.StrategyID != "needs-orders" {
		t.Errorf("got strategy id %q, want %q", result.StrategyID, "needs-orders")
	}
}
