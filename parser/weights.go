// Copyright 2025 the onnx2ir project. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package parser

import (
	"errors"
	"fmt"

	"github.com/weldml/onnx2ir/internal/convert"
	"github.com/weldml/onnx2ir/internal/onnx"
	"github.com/weldml/onnx2ir/ir"
)

// WeightDescriptor supplies weight data from outside the model, overriding
// or supplementing graph initializers of the same name.
type WeightDescriptor struct {
	Name     string
	DataType int32 // source element type (onnx.TensorProto* constant)
	Dims     []int64
	Data     []byte
}

// RefitEntry records where one weight use landed in the target network, so
// callers can later refit its data without re-translating. When a weight is
// consumed by several layers the k-th reuse (k >= 1) is recorded under
// "<name>_<k>"; the first use keeps the plain name.
type RefitEntry struct {
	WeightName string
	LayerName  string
	Role       ir.WeightsRole
}

var errWeightNotFound = errors.New("weight not found")

// weightBinder resolves weight references during one translate pass.
// Externally supplied descriptors win over graph initializers.
type weightBinder struct {
	descriptors  map[string]*WeightDescriptor
	initializers map[string]*onnx.TensorProto
	uses         map[string]int
	refit        []RefitEntry
}

func newWeightBinder(graph *onnx.GraphProto, descs []WeightDescriptor) *weightBinder {
	b := &weightBinder{
		descriptors:  make(map[string]*WeightDescriptor, len(descs)),
		initializers: make(map[string]*onnx.TensorProto),
		uses:         make(map[string]int),
	}
	for i := range descs {
		b.descriptors[descs[i].Name] = &descs[i]
	}
	for i := range graph.Initializers {
		b.initializers[graph.Initializers[i].Name] = &graph.Initializers[i]
	}
	return b
}

// IsWeight implements convert.Binder.
func (b *weightBinder) IsWeight(name string) bool {
	if _, ok := b.descriptors[name]; ok {
		return true
	}
	_, ok := b.initializers[name]
	return ok
}

// Bind implements convert.Binder.
func (b *weightBinder) Bind(weightName, layerName string, role ir.WeightsRole) (ir.Weights, error) {
	var (
		w   ir.Weights
		err error
	)
	if desc, ok := b.descriptors[weightName]; ok {
		w, err = weightsFromDescriptor(desc)
	} else if init, ok := b.initializers[weightName]; ok {
		w, err = convert.WeightsFromTensor(init)
	} else {
		return ir.Weights{}, fmt.Errorf("%q: %w", weightName, errWeightNotFound)
	}
	if err != nil {
		return ir.Weights{}, err
	}

	aliased := weightName
	if k := b.uses[weightName]; k > 0 {
		aliased = fmt.Sprintf("%s_%d", weightName, k)
	}
	b.uses[weightName]++
	b.refit = append(b.refit, RefitEntry{WeightName: aliased, LayerName: layerName, Role: role})
	return w, nil
}

func weightsFromDescriptor(desc *WeightDescriptor) (ir.Weights, error) {
	dtype, err := convert.DataTypeOf(desc.DataType)
	if err != nil {
		return ir.Weights{}, fmt.Errorf("weight descriptor %q: %w", desc.Name, err)
	}
	dims := make(ir.Dims, len(desc.Dims))
	copy(dims, desc.Dims)
	if vol := dims.Volume(); vol >= 0 && int64(len(desc.Data)) != vol*int64(dtype.Size()) {
		return ir.Weights{}, fmt.Errorf("weight descriptor %q: data size %d does not match shape %s (%s)",
			desc.Name, len(desc.Data), dims, dtype)
	}
	return ir.Weights{DType: dtype, Dims: dims, Data: desc.Data}, nil
}
