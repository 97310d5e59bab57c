// Copyright 2025 the onnx2ir project. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package parser

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weldml/onnx2ir/internal/onnx"
	"github.com/weldml/onnx2ir/ir"
)

// sharedWeightModel uses one initializer W from three MatMul nodes.
func sharedWeightModel() []byte {
	return buildModel(13, &onnx.GraphProto{
		Nodes: []onnx.NodeProto{
			{Name: "m0", OpType: "MatMul", Inputs: []string{"X", "W"}, Outputs: []string{"a"}},
			{Name: "m1", OpType: "MatMul", Inputs: []string{"a", "W"}, Outputs: []string{"b"}},
			{Name: "m2", OpType: "MatMul", Inputs: []string{"b", "W"}, Outputs: []string{"Y"}},
		},
		Initializers: []onnx.TensorProto{floatInit("W", 4, 4)},
		Inputs:       []onnx.ValueInfoProto{floatInput("X", 1, 4)},
		Outputs:      []onnx.ValueInfoProto{floatInput("Y", 1, 4)},
	})
}

func TestRefitMapAliasing(t *testing.T) {
	p, network := newTestParser(t)

	require.True(t, p.Parse(sharedWeightModel(), ""))
	require.Len(t, network.Layers(), 3)

	refit := p.RefitMap()
	require.Len(t, refit, 3)

	// First use keeps the plain name; reuses are suffixed in first-use order.
	assert.Equal(t, RefitEntry{WeightName: "W", LayerName: "m0", Role: ir.RoleKernel}, refit[0])
	assert.Equal(t, RefitEntry{WeightName: "W_1", LayerName: "m1", Role: ir.RoleKernel}, refit[1])
	assert.Equal(t, RefitEntry{WeightName: "W_2", LayerName: "m2", Role: ir.RoleKernel}, refit[2])
}

func TestRefitMapLifecycle(t *testing.T) {
	p, _ := newTestParser(t)
	assert.Empty(t, p.RefitMap())

	require.True(t, p.Parse(sharedWeightModel(), ""))
	assert.Len(t, p.RefitMap(), 3)

	// A new parse rebuilds the map from scratch.
	p2, _ := newTestParser(t)
	require.True(t, p2.Parse(reluChain(), ""))
	assert.Empty(t, p2.RefitMap())
}

func TestWeightDescriptorOverride(t *testing.T) {
	p, network := newTestParser(t)

	data := buildModel(13, &onnx.GraphProto{
		Nodes: []onnx.NodeProto{
			{Name: "m0", OpType: "MatMul", Inputs: []string{"X", "W"}, Outputs: []string{"Y"}},
		},
		Initializers: []onnx.TensorProto{floatInit("W", 4, 4)},
		Inputs:       []onnx.ValueInfoProto{floatInput("X", 1, 4)},
		Outputs:      []onnx.ValueInfoProto{floatInput("Y", 1, 4)},
	})

	override := make([]byte, 4*16)
	for i := 0; i < 16; i++ {
		binary.LittleEndian.PutUint32(override[i*4:], math.Float32bits(42))
	}
	ok := p.ParseWithWeightDescriptors(data, "", []WeightDescriptor{{
		Name:     "W",
		DataType: onnx.TensorProtoFloat,
		Dims:     []int64{4, 4},
		Data:     override,
	}})
	require.True(t, ok)

	layer, found := network.Layer("m0")
	require.True(t, found)
	vals, err := layer.Weights[ir.RoleKernel].Float32s()
	require.NoError(t, err)
	assert.Equal(t, float32(42), vals[0])
	assert.Equal(t, float32(42), vals[15])
}

func TestWeightDescriptorWithoutInitializer(t *testing.T) {
	p, network := newTestParser(t)

	// W exists only as a descriptor; the graph declares no initializer.
	data := buildModel(13, &onnx.GraphProto{
		Nodes: []onnx.NodeProto{
			{Name: "m0", OpType: "MatMul", Inputs: []string{"X", "W"}, Outputs: []string{"Y"}},
		},
		Inputs:  []onnx.ValueInfoProto{floatInput("X", 1, 4)},
		Outputs: []onnx.ValueInfoProto{floatInput("Y", 1, 4)},
	})

	w := floatInit("W", 4, 4)
	ok := p.ParseWithWeightDescriptors(data, "", []WeightDescriptor{{
		Name:     "W",
		DataType: onnx.TensorProtoFloat,
		Dims:     []int64{4, 4},
		Data:     w.RawData,
	}})
	require.True(t, ok)
	assert.Len(t, network.Layers(), 1)
	assert.Len(t, p.RefitMap(), 1)
}

func TestWeightDescriptorSizeMismatch(t *testing.T) {
	desc := &WeightDescriptor{
		Name:     "W",
		DataType: onnx.TensorProtoFloat,
		Dims:     []int64{4, 4},
		Data:     []byte{0, 0, 0, 0},
	}
	_, err := weightsFromDescriptor(desc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match shape")
}

func TestMissingWeightIsInvalidValue(t *testing.T) {
	p, _ := newTestParser(t)

	// Conv with an empty kernel name resolves no weight at bind time.
	data := buildModel(13, &onnx.GraphProto{
		Nodes: []onnx.NodeProto{
			{OpType: "Conv", Inputs: []string{"X", ""}, Outputs: []string{"Y"}},
		},
		Inputs:  []onnx.ValueInfoProto{floatInput("X", 1, 3, 8, 8)},
		Outputs: []onnx.ValueInfoProto{floatInput("Y", 1, 1, 8, 8)},
	})

	require.False(t, p.Parse(data, ""))
	require.Equal(t, 1, p.NumErrors())
	e, _ := p.Error(0)
	assert.Equal(t, ErrInvalidValue, e.Code)
	assert.Equal(t, 0, e.Node)
}

func TestBinderAliasCounting(t *testing.T) {
	graph := &onnx.GraphProto{
		Initializers: []onnx.TensorProto{floatInit("W", 2, 2)},
	}
	b := newWeightBinder(graph, nil)
	require.True(t, b.IsWeight("W"))
	require.False(t, b.IsWeight("X"))

	for i := 0; i < 3; i++ {
		_, err := b.Bind("W", "layer", ir.RoleKernel)
		require.NoError(t, err)
	}
	require.Len(t, b.refit, 3)
	assert.Equal(t, "W", b.refit[0].WeightName)
	assert.Equal(t, "W_1", b.refit[1].WeightName)
	assert.Equal(t, "W_2", b.refit[2].WeightName)

	_, err := b.Bind("missing", "layer", ir.RoleBias)
	require.ErrorIs(t, err, errWeightNotFound)
}
