package module

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/atlanticdynamic/lumenwall/internal/geometry"
	"github.com/atlanticdynamic/lumenwall/internal/wall/sandbox"
	"github.com/atlanticdynamic/lumenwall/internal/wall/titlecard"
)

var ErrInvalidWire = errors.New("invalid wire assignment")

// WireModule is the serialized form of a definition. The source is always
// inlined so nodes never need the server's filesystem.
type WireModule struct {
	Name    string         `json:"name"`
	Config  map[string]any `json:"config,omitempty"`
	Def     string         `json:"def"`
	Runtime string         `json:"runtime,omitempty"`
	Title   titlecard.Info `json:"title"`
}

// Wire is the serialized form of an assignment.
type Wire struct {
	Module WireModule       `json:"module"`
	Geo    []geometry.Point `json:"geo"`
	// Time is the deadline in milliseconds since the Unix epoch.
	Time int64 `json:"time"`
}

// ToWire converts an assignment, resolving its source.
func ToWire(a Assignment) (Wire, error) {
	code, err := a.Definition.Source.Resolve()
	if err != nil {
		return Wire{}, fmt.Errorf("module %s: %w", a.Definition.Name, err)
	}
	return Wire{
		Module: WireModule{
			Name:    a.Definition.Name,
			Config:  a.Definition.Config,
			Def:     code,
			Runtime: a.Definition.Source.Runtime,
			Title:   a.Definition.Title,
		},
		Geo:  a.Geometry.Points(),
		Time: a.Deadline.UnixMilli(),
	}, nil
}

// FromWire reconstructs an assignment.
func FromWire(w Wire) (Assignment, error) {
	if w.Module.Name == "" {
		return Assignment{}, fmt.Errorf("%w: module name is empty", ErrInvalidWire)
	}
	if err := CheckName(w.Module.Name); err != nil {
		return Assignment{}, fmt.Errorf("%w: %w", ErrInvalidWire, err)
	}
	if w.Module.Def == "" {
		return Assignment{}, fmt.Errorf("%w: module %s has no source", ErrInvalidWire, w.Module.Name)
	}
	if w.Time <= 0 {
		return Assignment{}, fmt.Errorf("%w: module %s has no deadline", ErrInvalidWire, w.Module.Name)
	}
	return Assignment{
		Definition: Definition{
			Name:   w.Module.Name,
			Config: w.Module.Config,
			Source: sandbox.Source{Runtime: w.Module.Runtime, Code: w.Module.Def},
			Title:  w.Module.Title,
		},
		Deadline: time.UnixMilli(w.Time),
		Geometry: geometry.NewPolygon(w.Geo),
	}, nil
}

// EncodeAssignment serializes an assignment to JSON.
func EncodeAssignment(a Assignment) ([]byte, error) {
	w, err := ToWire(a)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// DecodeAssignment parses a JSON assignment.
func DecodeAssignment(b []byte) (Assignment, error) {
	var w Wire
	if err := json.Unmarshal(b, &w); err != nil {
		return Assignment{}, fmt.Errorf("%w: %w", ErrInvalidWire, err)
	}
	return FromWire(w)
}
