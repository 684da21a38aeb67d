package livekv

import (
	"encoding/json"
	"fmt"
)

// SelectorKind identifies which shape a Selector holds.
type SelectorKind int

const (
	// SelectorPrefix matches every stored key starting with Prefix.
	SelectorPrefix SelectorKind = iota
	// SelectorProcedure invokes a server-registered procedure by name.
	SelectorProcedure
)

// Selector describes a result set: either a key prefix or a registered
// procedure invoked with a JSON argument. It is the Go equivalent of the
// source's GetFn tagged union, kept under a neutral name per spec.
type Selector struct {
	Kind SelectorKind

	// Prefix is valid when Kind == SelectorPrefix. The empty string
	// matches every stored key.
	Prefix string

	// ProcName and ProcArg are valid when Kind == SelectorProcedure.
	ProcName string
	ProcArg  json.RawMessage
}

// PrefixSelector builds a prefix Selector.
func PrefixSelector(prefix string) Selector {
	return Selector{Kind: SelectorPrefix, Prefix: prefix}
}

// ProcedureSelector builds a procedure Selector.
func ProcedureSelector(name string, arg json.RawMessage) Selector {
	if arg == nil {
		arg = json.RawMessage("null")
	}
	return Selector{Kind: SelectorProcedure, ProcName: name, ProcArg: arg}
}

type prefixWire struct {
	Prefix string `json:"Prefix"`
}

// MarshalJSON encodes the selector as the externally-tagged representation
// the wire protocol expects: {"Prefix":"p"} or {"Procedure":["name",arg]}.
func (s Selector) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case SelectorPrefix:
		return json.Marshal(prefixWire{Prefix: s.Prefix})
	case SelectorProcedure:
		nameJSON, err := json.Marshal(s.ProcName)
		if err != nil {
			return nil, fmt.Errorf("livekv: encode selector procedure name: %w", err)
		}
		arg := s.ProcArg
		if arg == nil {
			arg = json.RawMessage("null")
		}
		tuple := []json.RawMessage{json.RawMessage(nameJSON), arg}
		return json.Marshal(map[string][]json.RawMessage{"Procedure": tuple})
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrUnknownSelector, s.Kind)
	}
}

// UnmarshalJSON decodes either tagged shape into a Selector.
func (s *Selector) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("livekv: decode selector: %w", err)
	}

	if v, ok := raw["Prefix"]; ok {
		var prefix string
		if err := json.Unmarshal(v, &prefix); err != nil {
			return fmt.Errorf("livekv: decode selector prefix: %w", err)
		}
		*s = Selector{Kind: SelectorPrefix, Prefix: prefix}
		return nil
	}

	if v, ok := raw["Procedure"]; ok {
		var tuple []json.RawMessage
		if err := json.Unmarshal(v, &tuple); err != nil {
			return fmt.Errorf("livekv: decode selector procedure: %w", err)
		}
		if len(tuple) != 2 {
			return fmt.Errorf("livekv: selector procedure expects 2 elements, got %d", len(tuple))
		}
		var name string
		if err := json.Unmarshal(tuple[0], &name); err != nil {
			return fmt.Errorf("livekv: decode selector procedure name: %w", err)
		}
		*s = Selector{Kind: SelectorProcedure, ProcName: name, ProcArg: tuple[1]}
		return nil
	}

	return fmt.Errorf("%w: %s", ErrUnknownSelector, data)
}
