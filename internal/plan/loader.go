package plan

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

type planDocument struct {
	Kind  string `json:"kind"`
	Title string `json:"title"`
	Fatal bool   `json:"fatal"`
	Probe *Pin   `json:"probe,omitempty"`
	Pins  []Pin  `json:"pins"`
}

// MarshalJSON implements json.Marshaler.
func (p *Plan) MarshalJSON() ([]byte, error) {
	doc := planDocument{
		Kind:  p.kind.String(),
		Title: p.Title(),
		Fatal: p.Fatal(),
		Pins:  p.pins,
	}
	if pin, ok := p.Probed(); ok {
		doc.Probe = &pin
	}
	return json.Marshal(doc)
}

// WritePlans writes plans as an indented JSON array.
func WritePlans(w io.Writer, plans []*Plan) error {
	if plans == nil {
		plans = []*Plan{}
	}
	data, err := json.MarshalIndent(plans, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal plans: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write plans: %w", err)
	}
	return nil
}

// SavePlans writes plans to a JSON file
func SavePlans(path string, plans []*Plan) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("write plan file: %w", err)
	}
	if err := WritePlans(f, plans); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
