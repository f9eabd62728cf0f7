package visionkit

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
)

// ModelHandle is a loaded model returned to callers. Concrete runtimes
// return their own types; callers type-assert to reach inference methods.
type ModelHandle interface {
	// Variant returns the model family.
	Variant() Variant

	// Path returns the absolute path of the compiled artifact.
	Path() string
}

// CompiledModelSpec is everything a runtime needs to open a compiled model.
type CompiledModelSpec struct {
	// Path is the absolute path of the compiled artifact.
	Path string

	// ClassLabels is the ordered list of class names.
	ClassLabels []string

	// ColorMap maps class labels to display colors.
	ColorMap map[string]string

	// Environment holds the decoded environment document.
	Environment map[string]any
}

// Runtime opens compiled models. Implementations typically switch on the
// variant to construct a detector, classifier, segmenter or
// transformer-detector.
type Runtime interface {
	// Load opens the compiled model described by spec as the given variant.
	Load(ctx context.Context, variant Variant, spec CompiledModelSpec) (ModelHandle, error)
}

// CompiledModel is the handle returned when no Runtime is configured. It
// carries the compiled artifact location and its metadata so the host can
// drive inference itself.
type CompiledModel struct {
	variant     Variant
	path        string
	labels      []string
	colors      map[string]string
	environment map[string]any
}

// Ensure CompiledModel implements ModelHandle.
var _ ModelHandle = (*CompiledModel)(nil)

// Variant returns the model family.
func (m *CompiledModel) Variant() Variant { return m.variant }

// Path returns the absolute path of the compiled artifact.
func (m *CompiledModel) Path() string { return m.path }

// ClassLabels returns the ordered class names.
func (m *CompiledModel) ClassLabels() []string { return slices.Clone(m.labels) }

// ColorMap returns the label to color mapping.
func (m *CompiledModel) ColorMap() map[string]string { return maps.Clone(m.colors) }

// Environment returns the environment document.
func (m *CompiledModel) Environment() map[string]any { return maps.Clone(m.environment) }

// descriptorRuntime is the default Runtime. It only checks that the
// artifact exists.
type descriptorRuntime struct{}

func (descriptorRuntime) Load(_ context.Context, variant Variant, spec CompiledModelSpec) (ModelHandle, error) {
	if _, err := os.Stat(spec.Path); err != nil {
		return nil, fmt.Errorf("opening compiled model: %w", err)
	}
	return &CompiledModel{
		variant:     variant,
		path:        spec.Path,
		labels:      slices.Clone(spec.ClassLabels),
		colors:      maps.Clone(spec.ColorMap),
		environment: maps.Clone(spec.Environment),
	}, nil
}
