package model

import (
	"errors"
	"fmt"
)

// ShapeType drawable shape variants
type ShapeType string

const (
	ShapePath      ShapeType = "path"
	ShapeRectangle ShapeType = "rectangle"
	ShapeCircle    ShapeType = "circle"
)

var ErrInvalidShape = errors.New("invalid shape")

// Point a single coordinate on the canvas
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Shape is one replicated whiteboard entry. The id is immutable and is
// the sole replication key: an incoming shape with a known id replaces
// the held one wholesale, there is no field-level merge.
//
// The geometry fields form a tagged union keyed by Type; Validate
// enforces that only fully-initialized variants enter the store.
type Shape struct {
	ID          string    `json:"id"`
	Type        ShapeType `json:"type"`
	Points      []Point   `json:"points,omitempty"` // path
	X           float64   `json:"x"`
	Y           float64   `json:"y"`
	Width       float64   `json:"width,omitempty"`  // rectangle
	Height      float64   `json:"height,omitempty"` // rectangle
	Radius      float64   `json:"radius,omitempty"` // circle
	Stroke      string    `json:"stroke"`
	StrokeWidth float64   `json:"strokeWidth"`
	Fill        string    `json:"fill,omitempty"`
	AuthorID    string    `json:"authorId"`
	CreatedAt   int64     `json:"createdAt"` // unix milliseconds
}

// Validate checks the variant-specific geometry so partially-built
// shapes never reach the replicated store.
func (s *Shape) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidShape)
	}
	if s.AuthorID == "" {
		return fmt.Errorf("%w: missing author", ErrInvalidShape)
	}
	switch s.Type {
	case ShapePath:
		if len(s.Points) < 2 {
			return fmt.Errorf("%w: path needs at least two points", ErrInvalidShape)
		}
	case ShapeRectangle:
		if s.Width < 0 || s.Height < 0 {
			return fmt.Errorf("%w: negative rectangle bounds", ErrInvalidShape)
		}
	case ShapeCircle:
		if s.Radius < 0 {
			return fmt.Errorf("%w: negative radius", ErrInvalidShape)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidShape, s.Type)
	}
	if s.StrokeWidth <= 0 {
		return fmt.Errorf("%w: stroke width must be positive", ErrInvalidShape)
	}
	return nil
}
