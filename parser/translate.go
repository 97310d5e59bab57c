// Copyright 2025 the onnx2ir project. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package parser

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/weldml/onnx2ir/internal/convert"
	"github.com/weldml/onnx2ir/internal/onnx"
	"github.com/weldml/onnx2ir/ir"
)

// translate runs the full translation pass: inputs, topological node walk,
// graph outputs. It reports success; failures land in the diagnostic log.
//
// Structural problems (bad opset, broken topology) abort the pass. Per-node
// problems are recorded and the walk continues, so one pass surfaces every
// independently failing node. Nodes whose inputs come from a failed node are
// skipped without a diagnostic of their own.
func (p *Parser) translate(model *onnx.ModelProto, descs []WeightDescriptor) bool {
	before := p.errs.count()
	graph := model.Graph

	if err := checkOpset(model); err != nil {
		p.errs.record(ErrUnsupportedGraph, NodeSentinel, "%v", err)
		return false
	}
	opset := model.OpsetVersion()

	binder := newWeightBinder(graph, descs)
	p.binder = binder

	// Graph inputs, minus names backed by weight data.
	scope := make(map[string]*ir.Tensor)
	for i := range graph.Inputs {
		vi := &graph.Inputs[i]
		if binder.IsWeight(vi.Name) {
			continue
		}
		elem, err := elemTypeOf(vi)
		if err != nil {
			p.errs.record(ErrUnsupportedGraph, NodeSentinel, "input %q: %v", vi.Name, err)
			return false
		}
		tensor, err := p.network.AddInput(vi.Name, elem, convert.DimsOf(vi))
		if err != nil {
			p.errs.record(ErrInternal, NodeSentinel, "input %q: %v", vi.Name, err)
			return false
		}
		scope[vi.Name] = tensor
	}

	order, ok := p.sortNodes(graph, binder, scope)
	if !ok {
		return false
	}

	ctx := &convert.Context{
		Network: p.network,
		Binder:  binder,
		Opset:   opset,
		Logger:  p.logger,
	}

	// Outputs of nodes that failed to translate. Consumers of these are
	// skipped silently; the root diagnostic already covers them.
	failed := make(map[string]bool)
	layerNames := make(map[string]bool)

	for _, idx := range order {
		node := &graph.Nodes[idx]

		if cascaded(node, failed) {
			markFailed(node, failed)
			continue
		}

		// Converters assume at least one output tensor.
		if len(node.Outputs) == 0 {
			p.errs.record(ErrInvalidNode, idx, "%s declares no outputs", node.OpType)
			continue
		}

		op, registered := p.registry.Lookup(node.OpType)
		if !registered {
			p.errs.record(ErrUnsupportedNode, idx, "no converter for operator %q", node.OpType)
			markFailed(node, failed)
			continue
		}

		inputs, err := p.gatherInputs(node, binder, scope)
		if err != nil {
			p.errs.record(ErrInvalidNode, idx, "%s: %v", node.OpType, err)
			markFailed(node, failed)
			continue
		}

		cnode := &convert.Node{
			NodeProto: node,
			Index:     idx,
			LayerName: layerName(node, idx, layerNames),
		}
		outputs, err := op.Convert(ctx, cnode, inputs)
		if err != nil {
			p.errs.record(classify(err), idx, "%s: %v", node.OpType, err)
			markFailed(node, failed)
			continue
		}
		p.logger.Debug("translated node",
			zap.Int("index", idx),
			zap.String("op", node.OpType),
			zap.String("layer", cnode.LayerName))

		for i, name := range node.Outputs {
			if name == "" || i >= len(outputs) || outputs[i] == nil {
				continue
			}
			scope[name] = outputs[i]
		}
	}

	for i := range graph.Outputs {
		name := graph.Outputs[i].Name
		if failed[name] {
			continue
		}
		tensor, ok := scope[name]
		if !ok {
			p.errs.record(ErrInvalidGraph, NodeSentinel, "graph output %q was never produced", name)
			continue
		}
		if err := p.network.MarkOutput(tensor); err != nil {
			p.errs.record(ErrInternal, NodeSentinel, "graph output %q: %v", name, err)
		}
	}

	return p.errs.count() == before
}

// sortNodes orders the graph's nodes so every node follows its producers.
// Missing producers and cycles are structural faults and abort translation.
func (p *Parser) sortNodes(graph *onnx.GraphProto, binder *weightBinder, scope map[string]*ir.Tensor) ([]int, bool) {
	structural := false
	producers := make(map[string]int)
	for i := range graph.Nodes {
		for _, out := range graph.Nodes[i].Outputs {
			if out == "" {
				continue
			}
			if prev, ok := producers[out]; ok {
				p.errs.record(ErrInvalidGraph, i, "tensor %q is produced by both node %d and node %d", out, prev, i)
				structural = true
				continue
			}
			producers[out] = i
		}
	}

	deps := make([]int, len(graph.Nodes))
	consumers := make(map[int][]int)
	for i := range graph.Nodes {
		for _, in := range graph.Nodes[i].Inputs {
			if in == "" || binder.IsWeight(in) {
				continue
			}
			if _, ok := scope[in]; ok {
				continue
			}
			from, ok := producers[in]
			if !ok {
				p.errs.record(ErrInvalidGraph, i, "input %q of node %d has no producer", in, i)
				structural = true
				continue
			}
			deps[i]++
			consumers[from] = append(consumers[from], i)
		}
	}
	if structural {
		return nil, false
	}

	var ready []int
	for i, n := range deps {
		if n == 0 {
			ready = append(ready, i)
		}
	}
	order := make([]int, 0, len(graph.Nodes))
	for len(ready) > 0 {
		idx := ready[0]
		ready = ready[1:]
		order = append(order, idx)
		for _, next := range consumers[idx] {
			deps[next]--
			if deps[next] == 0 {
				ready = append(ready, next)
			}
		}
	}
	if len(order) != len(graph.Nodes) {
		p.errs.record(ErrInvalidGraph, NodeSentinel, "graph contains a cycle (%d of %d nodes orderable)",
			len(order), len(graph.Nodes))
		return nil, false
	}
	return order, true
}

// gatherInputs resolves a node's input names against the live scope. Weight
// and optional inputs stay nil; converters bind weights themselves.
func (p *Parser) gatherInputs(node *onnx.NodeProto, binder *weightBinder, scope map[string]*ir.Tensor) ([]*ir.Tensor, error) {
	inputs := make([]*ir.Tensor, len(node.Inputs))
	for i, name := range node.Inputs {
		if name == "" || binder.IsWeight(name) {
			continue
		}
		tensor, ok := scope[name]
		if !ok {
			return nil, fmt.Errorf("input %q is not available", name)
		}
		inputs[i] = tensor
	}
	return inputs, nil
}

// classify maps a converter error onto a diagnostic code.
func classify(err error) ErrorCode {
	switch {
	case errors.Is(err, convert.ErrUnsupported):
		return ErrUnsupportedNode
	case errors.Is(err, convert.ErrMalformed):
		return ErrInvalidNode
	case errors.Is(err, errWeightNotFound):
		return ErrInvalidValue
	default:
		return ErrInternal
	}
}

// cascaded reports whether the node consumes an output of a failed node.
func cascaded(node *onnx.NodeProto, failed map[string]bool) bool {
	for _, in := range node.Inputs {
		if failed[in] {
			return true
		}
	}
	return false
}

func markFailed(node *onnx.NodeProto, failed map[string]bool) {
	for _, out := range node.Outputs {
		if out != "" {
			failed[out] = true
		}
	}
}

// layerName picks a unique target layer name for a node.
func layerName(node *onnx.NodeProto, idx int, taken map[string]bool) string {
	name := node.Name
	if name == "" {
		name = fmt.Sprintf("%s_%d", node.OpType, idx)
	}
	for base, k := name, 1; taken[name]; k++ {
		name = fmt.Sprintf("%s_%d", base, k)
	}
	taken[name] = true
	return name
}

// elemTypeOf extracts the element type of a graph input declaration.
func elemTypeOf(vi *onnx.ValueInfoProto) (ir.DataType, error) {
	if vi.Type == nil || vi.Type.TensorType == nil {
		return 0, fmt.Errorf("missing tensor type")
	}
	return convert.DataTypeOf(vi.Type.TensorType.ElemType)
}
