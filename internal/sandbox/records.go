package sandbox

import (
	"errors"
	"fmt"
)

// ValidationStatus is the lifecycle state a code-backed strategy record
// carries from its offline validation pipeline.
type ValidationStatus string

const (
	ValidationPassed  ValidationStatus = "passed"
	ValidationFailed  ValidationStatus = "failed"
	ValidationPending ValidationStatus = "pending"
)

var (
	ErrRecordDisabled         = errors.New("sandbox: strategy record is disabled")
	ErrRecordInactive         = errors.New("sandbox: strategy record is inactive")
	ErrRecordFailedValidation = errors.New("sandbox: strategy record failed validation")
)

// ConfigBackedRecord describes a predefined-class strategy: no untrusted
// code, only a configuration blob dispatched to a registered constructor.
type ConfigBackedRecord struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	StrategyType string                 `json:"strategy_type"`
	Config       map[string]interface{} `json:"config"`
	ConfigHash   string                 `json:"config_hash"`
	Version      int                    `json:"version"`
	IsActive     bool                   `json:"is_active"`
}

// Admit rejects an inactive record before its config is dispatched.
func (r ConfigBackedRecord) Admit() error {
	if !r.IsActive {
		return fmt.Errorf("%w: %s", ErrRecordInactive, r.ID)
	}
	return nil
}

// CodeBackedRecord describes an externally-generated strategy whose source
// must pass the full four-stage load before it may run.
type CodeBackedRecord struct {
	ID               string           `json:"id"`
	StrategyName     string           `json:"strategy_name"`
	ClassName        string           `json:"class_name"`
	GeneratedCode    []byte           `json:"generated_code"`
	CodeHash         string           `json:"code_hash"`
	ValidationStatus ValidationStatus `json:"validation_status"`
	TestStatus       string           `json:"test_status"`
	IsEnabled        bool             `json:"is_enabled"`
	Version          int              `json:"version"`
}

// Admit rejects disabled or validation-failed records. It inspects only
// record metadata — the generated code is never parsed, hashed, or
// otherwise touched on the refusal path.
func (r CodeBackedRecord) Admit() error {
	if !r.IsEnabled {
		return fmt.Errorf("%w: %s", ErrRecordDisabled, r.ID)
	}
	if r.ValidationStatus == ValidationFailed {
		return fmt.Errorf("%w: %s", ErrRecordFailedValidation, r.ID)
	}
	return nil
}

// LoadRecord admits a code-backed record and then runs its generated code
// through the four-stage load, using the record's stored hash as the
// expected digest.
func (l *Loader) LoadRecord(rec CodeBackedRecord, strict bool, perms []Permission, build func(source []byte) error) (LoadResult, error) {
	if err := rec.Admit(); err != nil {
		l.logEvent(Event{StrategyID: rec.ID, Type: EventDenied, Detail: err.Error()})
		return LoadResult{}, err
	}
	return l.Load(LoadRequest{
		StrategyID:   rec.ID,
		Source:       rec.GeneratedCode,
		ExpectedHash: rec.CodeHash,
		Strict:       strict,
		Permissions:  perms,
	}, build)
}
