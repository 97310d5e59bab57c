// Copyright 2025 the onnx2ir project. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package parser translates ONNX models into a target intermediate
// representation. A Parser wraps one ir.Builder: each successful parse call
// populates it with inputs, layers and outputs, and leaves a refit map
// relating source weight names to the layers that consumed them. Failures
// accumulate in a diagnostic log the caller inspects through NumErrors and
// Error.
package parser

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/weldml/onnx2ir/internal/convert"
	"github.com/weldml/onnx2ir/internal/onnx"
	"github.com/weldml/onnx2ir/ir"
)

// Release version of the translation engine.
const (
	VersionMajor = 1
	VersionMinor = 0
	VersionPatch = 0
)

// Version is the packed release number, following the
// major*10000 + minor*100 + patch convention.
const Version = VersionMajor*10000 + VersionMinor*100 + VersionPatch

// Parser drives translation of ONNX models into one target network.
type Parser struct {
	network  ir.Builder
	logger   *zap.Logger
	registry *convert.Registry
	errs     errorLog
	binder   *weightBinder
}

// New creates a parser bound to a target network builder. The builder must
// implement the interface version this package was built against; a nil
// logger disables logging.
func New(network ir.Builder, logger *zap.Logger) (*Parser, error) {
	if network == nil {
		return nil, fmt.Errorf("nil network builder")
	}
	if got := network.BuilderVersion(); got != ir.InterfaceVersion {
		return nil, fmt.Errorf("builder implements interface version %d, need %d", got, ir.InterfaceVersion)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{
		network:  network,
		logger:   logger,
		registry: convert.NewRegistry(),
	}, nil
}

// Parse deserializes a model and translates it into the target network.
// modelPath locates external weight payloads and may be empty when the model
// embeds all its data. It reports success; on failure the network may hold a
// partial translation and the diagnostic log describes what went wrong.
func (p *Parser) Parse(data []byte, modelPath string) bool {
	return p.ParseWithWeightDescriptors(data, modelPath, nil)
}

// ParseFromFile reads and translates a model file. The file's own location
// resolves any external weight payloads. verbosity above zero logs a model
// summary before translation.
func (p *Parser) ParseFromFile(path string, verbosity int) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		p.errs.record(ErrModelDeserialize, NodeSentinel, "reading %q: %v", path, err)
		return false
	}
	model, ok := p.deserialize(data, path)
	if !ok {
		return false
	}
	if verbosity > 0 {
		info := onnx.Info(model)
		p.logger.Info("model summary",
			zap.String("path", path),
			zap.String("producer", info.ProducerName),
			zap.Int64("opset", info.OpsetVersion),
			zap.Int("nodes", info.NodeCount),
			zap.Int("weights", info.WeightCount))
	}
	return p.translate(model, nil)
}

// ParseWithWeightDescriptors translates a model with some or all weights
// supplied out of band. A descriptor whose name matches a graph initializer
// overrides it; descriptors with no graph counterpart add new weights.
func (p *Parser) ParseWithWeightDescriptors(data []byte, modelPath string, descs []WeightDescriptor) bool {
	model, ok := p.deserialize(data, modelPath)
	if !ok {
		return false
	}
	return p.translate(model, descs)
}

// deserialize decodes model bytes, accepting both the binary protobuf
// encoding and the JSON text form, and resolves external weight payloads
// relative to modelPath when one is given.
func (p *Parser) deserialize(data []byte, modelPath string) (*onnx.ModelProto, bool) {
	var (
		model *onnx.ModelProto
		err   error
	)
	if onnx.IsTextModel(data) {
		model, err = onnx.UnmarshalText(data)
	} else {
		model, err = onnx.Unmarshal(data)
	}
	if err != nil {
		p.errs.record(ErrModelDeserialize, NodeSentinel, "%v", err)
		return nil, false
	}
	if model.Graph == nil {
		p.errs.record(ErrModelDeserialize, NodeSentinel, "model has no graph")
		return nil, false
	}
	if modelPath != "" {
		if err := onnx.ResolveExternalData(model, modelPath); err != nil {
			p.errs.record(ErrModelDeserialize, NodeSentinel, "%v", err)
			return nil, false
		}
	}
	return model, true
}

// NumErrors returns the number of accumulated diagnostics.
func (p *Parser) NumErrors() int {
	return p.errs.count()
}

// Error returns the i-th diagnostic in recording order.
func (p *Parser) Error(i int) (ParserError, bool) {
	return p.errs.at(i)
}

// ClearErrors discards all accumulated diagnostics.
func (p *Parser) ClearErrors() {
	p.errs.clear()
}

// RefitMap returns the weight-to-layer bindings recorded by the most recent
// parse call, in first-use order. It is empty before any parse.
func (p *Parser) RefitMap() []RefitEntry {
	if p.binder == nil {
		return nil
	}
	out := make([]RefitEntry, len(p.binder.refit))
	copy(out, p.binder.refit)
	return out
}
