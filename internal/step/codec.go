package step

import (
	"encoding/json"
	"fmt"
)

// stepJSON is the wire form of a Step. Kind travels as its string label so
// that persisted snapshots and step files stay readable and stable across
// enum reordering.
type stepJSON struct {
	ID     int64  `json:"id"`
	Kind   string `json:"kind"`
	Column string `json:"column,omitempty"`
	Params Params `json:"params"`
	Name   string `json:"name,omitempty"`
}

func (s Step) MarshalJSON() ([]byte, error) {
	return json.Marshal(stepJSON{
		ID:     s.ID,
		Kind:   s.Kind.String(),
		Column: s.Column,
		Params: s.Params,
		Name:   s.Name,
	})
}

func (s *Step) UnmarshalJSON(data []byte) error {
	var w stepJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	k, ok := ParseKind(w.Kind)
	if !ok {
		return fmt.Errorf("step: unknown kind %q", w.Kind)
	}
	*s = Step{
		ID:     w.ID,
		Kind:   k,
		Column: w.Column,
		Params: w.Params,
		Name:   w.Name,
	}
	return nil
}
