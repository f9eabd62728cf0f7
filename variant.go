package visionkit

import "strings"

// Variant is the model family a compiled model belongs to.
type Variant int

const (
	// Detector is an object detection model. It is the fallback variant.
	Detector Variant = iota

	// Classifier is an image classification model.
	Classifier

	// Segmenter is an instance segmentation model.
	Segmenter

	// TransformerDetector is a DETR-style object detection model.
	TransformerDetector
)

// String returns the variant name.
func (v Variant) String() string {
	switch v {
	case Detector:
		return "detector"
	case Classifier:
		return "classifier"
	case Segmenter:
		return "segmenter"
	case TransformerDetector:
		return "transformer-detector"
	}
	return "unknown"
}

// ClassifyModelType maps a model type string reported by the service to a
// Variant. Matching is by substring and checked in order: "seg", then
// "vit"/"resnet", then "detr". Anything else is a Detector.
func ClassifyModelType(modelType string) Variant {
	switch {
	case strings.Contains(modelType, "seg"):
		return Segmenter
	case strings.Contains(modelType, "vit"), strings.Contains(modelType, "resnet"):
		return Classifier
	case strings.Contains(modelType, "detr"):
		// also covers "rfdetr"
		return TransformerDetector
	default:
		return Detector
	}
}
