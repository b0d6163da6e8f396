package models

// ParamType names the accepted kinds for a strategy parameter schema
// entry.
type ParamType string

const (
	ParamInt    ParamType = "int"
	ParamFloat  ParamType = "float"
	ParamString ParamType = "string"
	ParamBool   ParamType = "bool"
	ParamSelect ParamType = "select"
)

// ParamSpec describes one configurable parameter of a selector, entry
// strategy, or exit strategy.
type ParamSpec struct {
	Name        string      `json:"name"`
	Label       string      `json:"label,omitempty"`
	Type        ParamType   `json:"type"`
	Default     interface{} `json:"default,omitempty"`
	Required    bool        `json:"required"`
	Description string      `json:"description,omitempty"`
	Min         *float64    `json:"min,omitempty"`
	Max         *float64    `json:"max,omitempty"`
	Options     []string    `json:"options,omitempty"`
}

// ParamSchema is an ordered set of ParamSpec entries, keyed by name for
// lookup but kept in declaration order for display/validation messages.
type ParamSchema struct {
	Specs []ParamSpec `json:"specs"`
}

// Get returns the ParamSpec with the given name, if present.
func (s ParamSchema) Get(name string) (ParamSpec, bool) {
	for _, p := range s.Specs {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}

// StrategyKind classifies which of the three protocol layers a piece of
// strategy metadata belongs to.
type StrategyKind string

const (
	KindSelector StrategyKind = "selector"
	KindEntry    StrategyKind = "entry"
	KindExit     StrategyKind = "exit"
	KindComposer StrategyKind = "composer"
)

// StrategyMetadata is the declarative record every pluggable strategy
// component exposes: an identifier, a human name, which layer it belongs
// to, and the parameter schema it accepts. Each component reports it
// through its Metadata method, and a Composer bundles the three layers'
// records into a CompositionMetadata.
type StrategyMetadata struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Kind        StrategyKind           `json:"kind"`
	Version     string                 `json:"version,omitempty"`
	Description string                 `json:"description,omitempty"`
	Schema      ParamSchema            `json:"schema"`
	Params      map[string]interface{} `json:"params,omitempty"`
}

// CompositionMetadata is the machine-readable bundle describing a full
// selector+entry+exit+frequency composition, as returned by a Composer's
// Metadata method for CLI/consumer inspection and for keying comparison
// reports by composition identity.
type CompositionMetadata struct {
	ID            string           `json:"id"`
	RebalanceFreq string           `json:"rebalance_freq"`
	Selector      StrategyMetadata `json:"selector"`
	Entry         StrategyMetadata `json:"entry"`
	Exit          StrategyMetadata `json:"exit"`
}
