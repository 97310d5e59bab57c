package convert

import (
	"go.uber.org/zap"

	"github.com/weldml/onnx2ir/ir"
)

// Binder resolves weight references for converters and records refit
// provenance for every successful bind.
type Binder interface {
	// Bind resolves a weight by name on behalf of the named layer.
	Bind(weightName, layerName string, role ir.WeightsRole) (ir.Weights, error)

	// IsWeight reports whether a tensor name resolves to constant data
	// (externally supplied descriptor or graph initializer).
	IsWeight(name string) bool
}

// Context carries the per-translation collaborators converters work against.
type Context struct {
	Network ir.Builder
	Binder  Binder
	Opset   int64
	Logger  *zap.Logger
}
