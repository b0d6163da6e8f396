package sandbox

import (
	"fmt"
	"testing"
)

func TestAnalyzePassesSafeSource(t *testing.T) {
	violations, err := Analyze([]byte(safeStrategySource))
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}
	if len(violations) != 0 {
		t.Fatalf("expected no violations for safe source, got %v", violations)
	}
}

func TestAnalyzeDeniesForbiddenImportRoots(t *testing.T) {
	for _, imp := range []string{"os", "os/exec", "net", "net/http", "syscall", "unsafe", "plugin", "reflect", "database/sql"} {
		t.Run(imp, func(t *testing.T) {
			source := fmt.Sprintf("package dynamic\n\nimport _ %q\n", imp)
			violations, err := Analyze([]byte(source))
			if err != nil {
				t.Fatalf("Analyze() error: %v", err)
			}
			var hit bool
			for _, v := range violations {
				if v.Kind == "import" && v.Detail == imp {
					hit = true
				}
			}
			if !hit {
				t.Fatalf("import %q not flagged, violations: %v", imp, violations)
			}
		})
	}
}

func TestAnalyzeDeniesForbiddenBuiltins(t *testing.T) {
	for _, builtin := range []string{"panic", "recover"} {
		t.Run(builtin, func(t *testing.T) {
			source := fmt.Sprintf("package dynamic\n\nfunc f() { %s(nil) }\n", builtin)
			violations, err := Analyze([]byte(source))
			if err != nil {
				t.Fatalf("Analyze() error: %v", err)
			}
			var hit bool
			for _, v := range violations {
				if v.Kind == "builtin" && v.Detail == builtin {
					hit = true
				}
			}
			if !hit {
				t.Fatalf("builtin %q not flagged, violations: %v", builtin, violations)
			}
		})
	}
}

func TestViolationHardSplitsDenyListFromPatternCheck(t *testing.T) {
	for kind, wantHard := range map[string]bool{
		"import":     true,
		"builtin":    true,
		"selector":   true,
		"filesystem": false,
		"network":    false,
		"system":     false,
		"database":   false,
	} {
		if got := (Violation{Kind: kind}).Hard(); got != wantHard {
			t.Errorf("Violation{Kind: %q}.Hard() = %v, want %v", kind, got, wantHard)
		}
	}
}

func TestAnalyzeDeniesSubstringGroups(t *testing.T) {
	cases := map[string]string{
		"filesystem": `package dynamic

var path = "os.Open"
`,
		"network": `package dynamic

var hint = "http.Get the quotes"
`,
		"system": `package dynamic

var cmd = "exec.Command"
`,
		"database": `package dynamic

var dsn = "sql.Open a connection"
`,
	}
	for group, source := range cases {
		t.Run(group, func(t *testing.T) {
			violations, err := Analyze([]byte(source))
			if err != nil {
				t.Fatalf("Analyze() error: %v", err)
			}
			var hit bool
			for _, v := range violations {
				if v.Kind == group {
					hit = true
				}
			}
			if !hit {
				t.Fatalf("substring group %q not flagged, violations: %v", group, violations)
			}
		})
	}
}

func TestCodeBackedRecordGatesBeforeCodeIsTouched(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(NewRegistry(Lenient), NewLogger(dir))

	// The generated code is garbage that would fail parsing — if the gate
	// worked, it is never reached.
	rec := CodeBackedRecord{
		ID:               "disabled-strat",
		GeneratedCode:    []byte("not go at all {{{"),
		CodeHash:         "irrelevant",
		ValidationStatus: ValidationPassed,
		IsEnabled:        false,
	}
	_, err := loader.LoadRecord(rec, true, nil, func([]byte) error { return nil })
	if err == nil {
		t.Fatal("expected LoadRecord() to refuse a disabled record")
	}

	rec.IsEnabled = true
	rec.ValidationStatus = ValidationFailed
	_, err = loader.LoadRecord(rec, true, nil, func([]byte) error { return nil })
	if err == nil {
		t.Fatal("expected LoadRecord() to refuse a validation-failed record")
	}

	events, err := loader.Audit.Query(Filter{StrategyID: "disabled-strat", Type: EventDenied})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d denial events, want 2", len(events))
	}
}

func TestConfigBackedRecordRefusesInactive(t *testing.T) {
	rec := ConfigBackedRecord{ID: "cfg-momentum", StrategyType: "momentum", IsActive: false}
	if err := rec.Admit(); err == nil {
		t.Fatal("expected Admit() to refuse an inactive config-backed record")
	}
	rec.IsActive = true
	if err := rec.Admit(); err != nil {
		t.Fatalf("Admit() on active record: %v", err)
	}
}

func TestCodeBackedRecordLoadsWhenAdmitted(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(NewRegistry(Lenient), NewLogger(dir))

	source := []byte(safeStrategySource)
	rec := CodeBackedRecord{
		ID:               "generated-momentum",
		GeneratedCode:    source,
		CodeHash:         HashSource(source),
		ValidationStatus: ValidationPending,
		IsEnabled:        true,
	}
	var built bool
	result, err := loader.LoadRecord(rec, true, nil, func([]byte) error { built = true; return nil })
	if err != nil {
		t.Fatalf("LoadRecord() error: %v", err)
	}
	if !built {
		t.Fatal("build func was never invoked")
	}
	if result.RiskTier != RiskSafe {
		t.Errorf("got risk tier %s, want %s", result.RiskTier, RiskSafe)
	}
}
