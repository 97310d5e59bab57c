// Copyright 2025 the onnx2ir project. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package parser

import (
	"fmt"

	"github.com/weldml/onnx2ir/internal/onnx"
)

// Opset range the converter registry is written against.
const (
	MinOpsetVersion = 7
	MaxOpsetVersion = 21
)

// SupportsModel deserializes a model and classifies every node, without
// touching the target network. The returned collection partitions the node
// indices into maximal runs of translatable and untranslatable nodes; the
// boolean reports whether the whole model translates.
func (p *Parser) SupportsModel(data []byte, modelPath string) (bool, SubGraphCollection) {
	model, ok := p.deserialize(data, modelPath)
	if !ok {
		return false, nil
	}
	return p.analyze(model)
}

// analyze is the capability pass. Read-only: it must not mutate the model
// or emit into the network.
func (p *Parser) analyze(model *onnx.ModelProto) (bool, SubGraphCollection) {
	nodes := model.Graph.Nodes
	if err := checkOpset(model); err != nil {
		p.errs.record(ErrUnsupportedGraph, NodeSentinel, "%v", err)
		verdicts := make([]bool, len(nodes))
		return false, partition(verdicts)
	}

	opset := model.OpsetVersion()
	verdicts := make([]bool, len(nodes))
	for i := range nodes {
		verdicts[i] = p.registry.SupportsNode(&nodes[i], opset)
	}
	coll := partition(verdicts)
	return coll.Supported(), coll
}

// SupportsOperator reports whether a converter is registered for the
// operator. A true result is an existence check only: specific attribute
// combinations may still be rejected at translation time.
func (p *Parser) SupportsOperator(name string) bool {
	return p.registry.Has(name)
}

// checkOpset gates translation on the model's default-domain opset import.
func checkOpset(model *onnx.ModelProto) error {
	opset := model.OpsetVersion()
	if opset == 0 {
		return fmt.Errorf("model declares no default-domain opset import")
	}
	if opset < MinOpsetVersion || opset > MaxOpsetVersion {
		return fmt.Errorf("opset %d is outside the supported range [%d, %d]",
			opset, MinOpsetVersion, MaxOpsetVersion)
	}
	return nil
}
