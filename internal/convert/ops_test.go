package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weldml/onnx2ir/internal/onnx"
	"github.com/weldml/onnx2ir/ir"
)

var testOps = NewRegistry()

func addInput(t *testing.T, ctx *Context, name string, dims ir.Dims) *ir.Tensor {
	t.Helper()
	tensor, err := ctx.Network.AddInput(name, ir.Float32, dims)
	require.NoError(t, err)
	return tensor
}

func TestElementwiseWithConstantOperand(t *testing.T) {
	ctx, network, binder := testContext(map[string]ir.Weights{
		"B": float32Weights(ir.Dims{4}, 1, 2, 3, 4),
	})
	x := addInput(t, ctx, "X", ir.Dims{1, 4})

	op, ok := testOps.Lookup("Add")
	require.True(t, ok)

	node := &Node{
		NodeProto: &onnx.NodeProto{OpType: "Add", Inputs: []string{"X", "B"}, Outputs: []string{"Y"}},
		Index:     0,
		LayerName: "add0",
	}
	outs, err := op.Convert(ctx, node, []*ir.Tensor{x, nil})
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, "Y", outs[0].Name())
	assert.Equal(t, ir.Dims{1, 4}, outs[0].Dims())

	layer, ok := network.Layer("add0")
	require.True(t, ok)
	assert.Equal(t, "elementwise", layer.Kind)
	assert.Equal(t, "sum", layer.Attrs["operation"])
	assert.Contains(t, layer.Weights, ir.RoleConstant)
	assert.Equal(t, []string{"B"}, binder.bound)
}

func TestElementwiseRejectsTwoConstants(t *testing.T) {
	ctx, network, binder := testContext(map[string]ir.Weights{
		"A": float32Weights(ir.Dims{2}, 1, 2),
		"B": float32Weights(ir.Dims{2}, 3, 4),
	})

	op, ok := testOps.Lookup("Add")
	require.True(t, ok)

	node := &Node{
		NodeProto: &onnx.NodeProto{OpType: "Add", Inputs: []string{"A", "B"}, Outputs: []string{"C"}},
		LayerName: "add0",
	}
	_, err := op.Convert(ctx, node, []*ir.Tensor{nil, nil})
	require.ErrorIs(t, err, ErrUnsupported)

	// The rejection happens before any bind, so no refit entries leak.
	assert.Empty(t, binder.bound)
	assert.Empty(t, network.Layers())
}

func TestConvertGemm(t *testing.T) {
	ctx, network, _ := testContext(map[string]ir.Weights{
		"W": float32Weights(ir.Dims{8, 16}, make([]float32, 128)...),
		"B": float32Weights(ir.Dims{8}, make([]float32, 8)...),
	})
	x := addInput(t, ctx, "X", ir.Dims{1, 16})

	op, ok := testOps.Lookup("Gemm")
	require.True(t, ok)

	node := &Node{
		NodeProto: &onnx.NodeProto{
			OpType:  "Gemm",
			Inputs:  []string{"X", "W", "B"},
			Outputs: []string{"Y"},
			Attributes: []onnx.AttributeProto{
				{Name: "transB", Type: onnx.AttributeProtoInt, I: 1},
			},
		},
		LayerName: "fc0",
	}
	outs, err := op.Convert(ctx, node, []*ir.Tensor{x, nil, nil})
	require.NoError(t, err)
	// transB=1: output columns come from W's first dim.
	assert.Equal(t, ir.Dims{1, 8}, outs[0].Dims())

	layer, ok := network.Layer("fc0")
	require.True(t, ok)
	assert.Equal(t, "fully_connected", layer.Kind)
	assert.Contains(t, layer.Weights, ir.RoleKernel)
	assert.Contains(t, layer.Weights, ir.RoleBias)
	assert.Equal(t, true, layer.Attrs["transB"])
}

func TestConvertConvShape(t *testing.T) {
	ctx, network, _ := testContext(map[string]ir.Weights{
		"W": float32Weights(ir.Dims{8, 3, 3, 3}, make([]float32, 8*3*3*3)...),
	})
	x := addInput(t, ctx, "X", ir.Dims{1, 3, 32, 32})

	op, ok := testOps.Lookup("Conv")
	require.True(t, ok)

	node := &Node{
		NodeProto: &onnx.NodeProto{
			OpType:  "Conv",
			Inputs:  []string{"X", "W"},
			Outputs: []string{"Y"},
			Attributes: []onnx.AttributeProto{
				{Name: "kernel_shape", Type: onnx.AttributeProtoInts, Ints: []int64{3, 3}},
				{Name: "strides", Type: onnx.AttributeProtoInts, Ints: []int64{1, 1}},
				{Name: "pads", Type: onnx.AttributeProtoInts, Ints: []int64{1, 1, 1, 1}},
			},
		},
		LayerName: "conv0",
	}
	outs, err := op.Convert(ctx, node, []*ir.Tensor{x, nil})
	require.NoError(t, err)
	// Same padding with 3x3 kernel keeps spatial dims; channels follow the kernel.
	assert.Equal(t, ir.Dims{1, 8, 32, 32}, outs[0].Dims())

	layer, ok := network.Layer("conv0")
	require.True(t, ok)
	assert.Equal(t, "convolution", layer.Kind)
	assert.Equal(t, int64(1), layer.Attrs["group"])
}

func TestConvertConvRejectsAutoPad(t *testing.T) {
	ctx, _, _ := testContext(map[string]ir.Weights{
		"W": float32Weights(ir.Dims{1, 1, 3, 3}, make([]float32, 9)...),
	})
	x := addInput(t, ctx, "X", ir.Dims{1, 1, 8, 8})

	op, _ := testOps.Lookup("Conv")
	node := &Node{
		NodeProto: &onnx.NodeProto{
			OpType:  "Conv",
			Inputs:  []string{"X", "W"},
			Outputs: []string{"Y"},
			Attributes: []onnx.AttributeProto{
				{Name: "auto_pad", Type: onnx.AttributeProtoString, S: []byte("SAME_UPPER")},
			},
		},
		LayerName: "conv0",
	}
	_, err := op.Convert(ctx, node, []*ir.Tensor{x, nil})
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestConvertBatchNormFolding(t *testing.T) {
	ctx, network, _ := testContext(map[string]ir.Weights{
		"scale": float32Weights(ir.Dims{2}, 2, 2),
		"bias":  float32Weights(ir.Dims{2}, 1, 1),
		"mean":  float32Weights(ir.Dims{2}, 0, 0),
		"var":   float32Weights(ir.Dims{2}, 4, 4),
	})
	x := addInput(t, ctx, "X", ir.Dims{1, 2, 8, 8})

	op, ok := testOps.Lookup("BatchNormalization")
	require.True(t, ok)

	node := &Node{
		NodeProto: &onnx.NodeProto{
			OpType:  "BatchNormalization",
			Inputs:  []string{"X", "scale", "bias", "mean", "var"},
			Outputs: []string{"Y"},
		},
		LayerName: "bn0",
	}
	_, err := op.Convert(ctx, node, []*ir.Tensor{x, nil, nil, nil, nil})
	require.NoError(t, err)

	layer, ok := network.Layer("bn0")
	require.True(t, ok)
	assert.Equal(t, "scale", layer.Kind)

	// scale' = 2/sqrt(4+eps) which is just under 1; shift' = 1 - 0*scale' = 1.
	folded, err := layer.Weights[ir.RoleScale].Float32s()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, folded[0], 1e-4)
	shift, err := layer.Weights[ir.RoleShift].Float32s()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, shift[0], 1e-4)
}

func TestSoftmaxDefaultAxis(t *testing.T) {
	for _, tc := range []struct {
		opset int64
		want  int64
	}{
		{opset: 11, want: 1},
		{opset: 13, want: -1},
	} {
		ctx, network, _ := testContext(nil)
		ctx.Opset = tc.opset
		x := addInput(t, ctx, "X", ir.Dims{1, 10})

		op, _ := testOps.Lookup("Softmax")
		node := &Node{
			NodeProto: &onnx.NodeProto{OpType: "Softmax", Inputs: []string{"X"}, Outputs: []string{"Y"}},
			LayerName: "sm0",
		}
		_, err := op.Convert(ctx, node, []*ir.Tensor{x})
		require.NoError(t, err)

		layer, _ := network.Layer("sm0")
		assert.Equal(t, tc.want, layer.Attrs["axis"], "opset %d", tc.opset)
	}
}

func TestConvertConstant(t *testing.T) {
	ctx, network, _ := testContext(nil)

	op, _ := testOps.Lookup("Constant")
	node := &Node{
		NodeProto: &onnx.NodeProto{
			OpType:  "Constant",
			Outputs: []string{"C"},
			Attributes: []onnx.AttributeProto{{
				Name: "value",
				Type: onnx.AttributeProtoTensor,
				T: &onnx.TensorProto{
					Name:      "c",
					DataType:  onnx.TensorProtoFloat,
					Dims:      []int64{2},
					FloatData: []float32{1, 2},
				},
			}},
		},
		LayerName: "const0",
	}
	outs, err := op.Convert(ctx, node, nil)
	require.NoError(t, err)
	assert.Equal(t, ir.Dims{2}, outs[0].Dims())

	layer, _ := network.Layer("const0")
	require.NotNil(t, layer)
	assert.Equal(t, "constant", layer.Kind)
}

func TestConcatRequiresAxis(t *testing.T) {
	ctx, _, _ := testContext(nil)
	a := addInput(t, ctx, "A", ir.Dims{1, 2})
	b := addInput(t, ctx, "B", ir.Dims{1, 3})

	op, _ := testOps.Lookup("Concat")
	node := &Node{
		NodeProto: &onnx.NodeProto{OpType: "Concat", Inputs: []string{"A", "B"}, Outputs: []string{"C"}},
		LayerName: "cat0",
	}
	_, err := op.Convert(ctx, node, []*ir.Tensor{a, b})
	require.ErrorIs(t, err, ErrMalformed)
}
