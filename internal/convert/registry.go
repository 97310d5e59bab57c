// Package convert holds the per-operator converters that translate source
// graph nodes into target IR layers.
package convert

import (
	"errors"
	"sort"

	"github.com/weldml/onnx2ir/internal/onnx"
	"github.com/weldml/onnx2ir/ir"
)

// Translation errors converters report. The engine maps these onto its
// diagnostic codes.
var (
	// ErrUnsupported marks an attribute combination the converter cannot
	// express in the target IR.
	ErrUnsupported = errors.New("unsupported node")

	// ErrMalformed marks a node that is structurally broken regardless of
	// operator support (wrong input count, missing required attribute).
	ErrMalformed = errors.New("malformed node")
)

// Node is one source node handed to a converter, with the identity the
// engine assigned to it.
type Node struct {
	*onnx.NodeProto
	Index     int    // position in the source graph's node sequence
	LayerName string // unique target layer name
}

// ConvertFunc translates a node into target IR constructs. Entries in inputs
// line up with node.Inputs; weight-backed and optional inputs are nil, and
// converters resolve weights through the binder themselves.
type ConvertFunc func(ctx *Context, node *Node, inputs []*ir.Tensor) ([]*ir.Tensor, error)

// SupportFunc is the attribute-level support predicate used by capability
// analysis. It must not mutate anything.
type SupportFunc func(node *onnx.NodeProto, opset int64) bool

// Op is a registered operator converter.
type Op struct {
	MinOpset  int64
	Supported SupportFunc // optional; nil means all attribute combinations convert
	Convert   ConvertFunc
}

// Registry maps operator types to converters.
type Registry struct {
	ops map[string]Op
}

// NewRegistry creates a registry with all built-in converters.
func NewRegistry() *Registry {
	r := &Registry{ops: make(map[string]Op)}
	r.registerCore()
	r.registerConv()
	r.registerActivations()
	r.registerShapeOps()
	return r
}

// Register adds or replaces a converter.
func (r *Registry) Register(opType string, op Op) {
	r.ops[opType] = op
}

// Lookup returns the converter for an operator type.
func (r *Registry) Lookup(opType string) (Op, bool) {
	op, ok := r.ops[opType]
	return op, ok
}

// Has reports whether any converter is registered for the operator type.
// This is the conservative existence check behind SupportsOperator: a true
// result does not guarantee every attribute combination converts.
func (r *Registry) Has(opType string) bool {
	_, ok := r.ops[opType]
	return ok
}

// SupportsNode evaluates the full per-node support predicate: converter
// registered, opset in range, and attributes accepted.
func (r *Registry) SupportsNode(node *onnx.NodeProto, opset int64) bool {
	op, ok := r.ops[node.OpType]
	if !ok {
		return false
	}
	if op.MinOpset > 0 && opset < op.MinOpset {
		return false
	}
	if op.Supported != nil && !op.Supported(node, opset) {
		return false
	}
	return true
}

// SupportedOps returns all registered operator types, sorted.
func (r *Registry) SupportedOps() []string {
	ops := make([]string, 0, len(r.ops))
	for op := range r.ops {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}
