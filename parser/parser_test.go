// Copyright 2025 the onnx2ir project. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package parser

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weldml/onnx2ir/internal/onnx"
	"github.com/weldml/onnx2ir/ir"
)

func newTestParser(t *testing.T) (*Parser, *ir.Network) {
	t.Helper()
	network := ir.NewNetwork()
	p, err := New(network, nil)
	require.NoError(t, err)
	return p, network
}

func floatInput(name string, dims ...int64) onnx.ValueInfoProto {
	shape := &onnx.TensorShapeProto{}
	for _, d := range dims {
		shape.Dims = append(shape.Dims, onnx.DimensionProto{DimValue: d})
	}
	return onnx.ValueInfoProto{
		Name: name,
		Type: &onnx.TypeProto{TensorType: &onnx.TensorTypeProto{
			ElemType: onnx.TensorProtoFloat,
			Shape:    shape,
		}},
	}
}

func floatInit(name string, dims ...int64) onnx.TensorProto {
	n := int64(1)
	for _, d := range dims {
		n *= d
	}
	data := make([]byte, 4*n)
	for i := int64(0); i < n; i++ {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(float32(i)))
	}
	return onnx.TensorProto{
		Name:     name,
		DataType: onnx.TensorProtoFloat,
		Dims:     dims,
		RawData:  data,
	}
}

func buildModel(opset int64, graph *onnx.GraphProto) []byte {
	return onnx.Marshal(&onnx.ModelProto{
		IRVersion:   8,
		OpsetImport: []onnx.OperatorSetID{{Version: opset}},
		Graph:       graph,
	})
}

// reluChain builds X -> Relu -> Sigmoid -> Y.
func reluChain() []byte {
	return buildModel(13, &onnx.GraphProto{
		Name: "chain",
		Nodes: []onnx.NodeProto{
			{Name: "relu0", OpType: "Relu", Inputs: []string{"X"}, Outputs: []string{"h"}},
			{Name: "sig0", OpType: "Sigmoid", Inputs: []string{"h"}, Outputs: []string{"Y"}},
		},
		Inputs:  []onnx.ValueInfoProto{floatInput("X", 1, 4)},
		Outputs: []onnx.ValueInfoProto{floatInput("Y", 1, 4)},
	})
}

func TestParseSuccess(t *testing.T) {
	p, network := newTestParser(t)

	ok := p.Parse(reluChain(), "")
	require.True(t, ok)
	assert.Zero(t, p.NumErrors())

	require.Len(t, network.Inputs(), 1)
	assert.Equal(t, "X", network.Inputs()[0].Name())
	require.Len(t, network.Outputs(), 1)
	assert.Equal(t, "Y", network.Outputs()[0].Name())
	require.Len(t, network.Layers(), 2)
	assert.Equal(t, "activation", network.Layers()[0].Kind)
}

func TestParseGarbage(t *testing.T) {
	p, network := newTestParser(t)

	ok := p.Parse([]byte{0xde, 0xad, 0xbe, 0xef, 0xff}, "")
	require.False(t, ok)
	require.Equal(t, 1, p.NumErrors())

	e, found := p.Error(0)
	require.True(t, found)
	assert.Equal(t, ErrModelDeserialize, e.Code)
	assert.Equal(t, NodeSentinel, e.Node)
	assert.NotEmpty(t, e.File)
	assert.NotZero(t, e.Line)

	assert.Empty(t, network.Layers())
	assert.Empty(t, network.Inputs())
}

func TestParseNoGraph(t *testing.T) {
	p, _ := newTestParser(t)
	data := onnx.Marshal(&onnx.ModelProto{IRVersion: 8})

	require.False(t, p.Parse(data, ""))
	e, _ := p.Error(0)
	assert.Equal(t, ErrModelDeserialize, e.Code)
}

func TestUnsupportedNode(t *testing.T) {
	p, network := newTestParser(t)

	data := buildModel(13, &onnx.GraphProto{
		Nodes: []onnx.NodeProto{
			{OpType: "Relu", Inputs: []string{"X"}, Outputs: []string{"h"}},
			{OpType: "Foo", Inputs: []string{"h"}, Outputs: []string{"Y"}},
		},
		Inputs:  []onnx.ValueInfoProto{floatInput("X", 1, 4)},
		Outputs: []onnx.ValueInfoProto{floatInput("Y", 1, 4)},
	})

	require.False(t, p.Parse(data, ""))
	require.Equal(t, 1, p.NumErrors())
	e, _ := p.Error(0)
	assert.Equal(t, ErrUnsupportedNode, e.Code)
	assert.Equal(t, 1, e.Node)
	assert.Contains(t, e.Desc, "Foo")

	// The supported prefix still translated.
	assert.Len(t, network.Layers(), 1)
}

func TestErrorAccumulationAcrossParses(t *testing.T) {
	p, _ := newTestParser(t)

	require.False(t, p.Parse([]byte{0xff}, ""))
	require.False(t, p.Parse([]byte{0xff}, ""))
	assert.Equal(t, 2, p.NumErrors())

	p.ClearErrors()
	assert.Zero(t, p.NumErrors())
	_, found := p.Error(0)
	assert.False(t, found)
}

func TestMultipleNodeErrorsInOnePass(t *testing.T) {
	p, _ := newTestParser(t)

	// Two independently failing nodes; both must be reported in one pass.
	data := buildModel(13, &onnx.GraphProto{
		Nodes: []onnx.NodeProto{
			{OpType: "Foo", Inputs: []string{"X"}, Outputs: []string{"a"}},
			{OpType: "Bar", Inputs: []string{"X"}, Outputs: []string{"b"}},
		},
		Inputs:  []onnx.ValueInfoProto{floatInput("X", 1, 4)},
		Outputs: []onnx.ValueInfoProto{floatInput("a", 1, 4), floatInput("b", 1, 4)},
	})

	require.False(t, p.Parse(data, ""))
	assert.Equal(t, 2, p.NumErrors())
	for i := 0; i < 2; i++ {
		e, _ := p.Error(i)
		assert.Equal(t, ErrUnsupportedNode, e.Code)
	}
}

func TestCascadeFailuresAreSilent(t *testing.T) {
	p, _ := newTestParser(t)

	// Relu consumes Foo's output; only Foo itself is diagnosed.
	data := buildModel(13, &onnx.GraphProto{
		Nodes: []onnx.NodeProto{
			{OpType: "Foo", Inputs: []string{"X"}, Outputs: []string{"h"}},
			{OpType: "Relu", Inputs: []string{"h"}, Outputs: []string{"Y"}},
		},
		Inputs:  []onnx.ValueInfoProto{floatInput("X", 1, 4)},
		Outputs: []onnx.ValueInfoProto{floatInput("Y", 1, 4)},
	})

	require.False(t, p.Parse(data, ""))
	require.Equal(t, 1, p.NumErrors())
	e, _ := p.Error(0)
	assert.Equal(t, ErrUnsupportedNode, e.Code)
	assert.Equal(t, 0, e.Node)
}

func TestNodeWithoutOutputs(t *testing.T) {
	p, network := newTestParser(t)

	// A node declaring no output tensors is malformed but must not stop the
	// walk or crash converter dispatch.
	data := buildModel(13, &onnx.GraphProto{
		Nodes: []onnx.NodeProto{
			{OpType: "Relu", Inputs: []string{"X"}},
			{OpType: "Relu", Inputs: []string{"X"}, Outputs: []string{"Y"}},
		},
		Inputs:  []onnx.ValueInfoProto{floatInput("X", 1, 4)},
		Outputs: []onnx.ValueInfoProto{floatInput("Y", 1, 4)},
	})

	require.False(t, p.Parse(data, ""))
	require.Equal(t, 1, p.NumErrors())
	e, _ := p.Error(0)
	assert.Equal(t, ErrInvalidNode, e.Code)
	assert.Equal(t, 0, e.Node)
	assert.Contains(t, e.Desc, "no outputs")

	// The well-formed node still translated.
	assert.Len(t, network.Layers(), 1)
}

func TestDuplicateProducer(t *testing.T) {
	p, network := newTestParser(t)

	data := buildModel(13, &onnx.GraphProto{
		Nodes: []onnx.NodeProto{
			{OpType: "Relu", Inputs: []string{"X"}, Outputs: []string{"h"}},
			{OpType: "Sigmoid", Inputs: []string{"X"}, Outputs: []string{"h"}},
		},
		Inputs:  []onnx.ValueInfoProto{floatInput("X", 1, 4)},
		Outputs: []onnx.ValueInfoProto{floatInput("h", 1, 4)},
	})

	require.False(t, p.Parse(data, ""))
	require.Equal(t, 1, p.NumErrors())
	e, _ := p.Error(0)
	assert.Equal(t, ErrInvalidGraph, e.Code)
	assert.Equal(t, 1, e.Node)
	assert.Contains(t, e.Desc, "produced by both")

	assert.Empty(t, network.Layers())
}

func TestParseFromFile(t *testing.T) {
	p, network := newTestParser(t)

	path := filepath.Join(t.TempDir(), "model.onnx")
	require.NoError(t, os.WriteFile(path, reluChain(), 0o644))

	require.True(t, p.ParseFromFile(path, 1))
	assert.Zero(t, p.NumErrors())
	assert.Len(t, network.Layers(), 2)
}

func TestParseFromFileGarbage(t *testing.T) {
	p, _ := newTestParser(t)

	path := filepath.Join(t.TempDir(), "model.onnx")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0xff, 0xff}, 0o644))

	// A malformed file yields exactly one diagnostic even with the summary
	// pass enabled.
	require.False(t, p.ParseFromFile(path, 1))
	require.Equal(t, 1, p.NumErrors())
	e, _ := p.Error(0)
	assert.Equal(t, ErrModelDeserialize, e.Code)
}

func TestMissingProducer(t *testing.T) {
	p, _ := newTestParser(t)

	data := buildModel(13, &onnx.GraphProto{
		Nodes: []onnx.NodeProto{
			{OpType: "Relu", Inputs: []string{"ghost"}, Outputs: []string{"Y"}},
		},
		Inputs:  []onnx.ValueInfoProto{floatInput("X", 1, 4)},
		Outputs: []onnx.ValueInfoProto{floatInput("Y", 1, 4)},
	})

	require.False(t, p.Parse(data, ""))
	e, _ := p.Error(0)
	assert.Equal(t, ErrInvalidGraph, e.Code)
	assert.Contains(t, e.Desc, "ghost")
}

func TestCycleDetection(t *testing.T) {
	p, _ := newTestParser(t)

	data := buildModel(13, &onnx.GraphProto{
		Nodes: []onnx.NodeProto{
			{OpType: "Add", Inputs: []string{"X", "b"}, Outputs: []string{"a"}},
			{OpType: "Relu", Inputs: []string{"a"}, Outputs: []string{"b"}},
		},
		Inputs:  []onnx.ValueInfoProto{floatInput("X", 1, 4)},
		Outputs: []onnx.ValueInfoProto{floatInput("a", 1, 4)},
	})

	require.False(t, p.Parse(data, ""))
	e, _ := p.Error(0)
	assert.Equal(t, ErrInvalidGraph, e.Code)
	assert.Contains(t, e.Desc, "cycle")
}

func TestOpsetGate(t *testing.T) {
	p, network := newTestParser(t)

	data := buildModel(3, &onnx.GraphProto{
		Nodes: []onnx.NodeProto{
			{OpType: "Relu", Inputs: []string{"X"}, Outputs: []string{"Y"}},
		},
		Inputs:  []onnx.ValueInfoProto{floatInput("X", 1, 4)},
		Outputs: []onnx.ValueInfoProto{floatInput("Y", 1, 4)},
	})

	require.False(t, p.Parse(data, ""))
	e, _ := p.Error(0)
	assert.Equal(t, ErrUnsupportedGraph, e.Code)
	assert.Empty(t, network.Layers())
}

func TestVersionCheck(t *testing.T) {
	_, err := New(&staleBuilder{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interface version")

	_, err = New(nil, nil)
	require.Error(t, err)
}

// staleBuilder reports an interface version from an older release.
type staleBuilder struct{ ir.Network }

func (b *staleBuilder) BuilderVersion() int { return 900 }

func TestTextFormModel(t *testing.T) {
	p, network := newTestParser(t)

	text := `{
	  "irVersion": "8",
	  "opsetImport": [{"version": "13"}],
	  "graph": {
	    "node": [{"opType": "Relu", "input": ["X"], "output": ["Y"]}],
	    "input": [{"name": "X", "type": {"tensorType": {"elemType": 1, "shape": {"dim": [{"dimValue": "1"}, {"dimValue": "4"}]}}}}],
	    "output": [{"name": "Y", "type": {"tensorType": {"elemType": 1}}}]
	  }
	}`
	require.True(t, p.Parse([]byte(text), ""))
	assert.Len(t, network.Layers(), 1)
}
