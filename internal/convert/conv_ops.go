package convert

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/weldml/onnx2ir/internal/onnx"
	"github.com/weldml/onnx2ir/ir"
)

// registerConv adds convolution, pooling and normalization converters.
func (r *Registry) registerConv() {
	r.Register("Conv", Op{Convert: convertConv, Supported: padSupported})
	r.Register("MaxPool", Op{Convert: pool("max"), Supported: padSupported})
	r.Register("AveragePool", Op{Convert: pool("average"), Supported: padSupported})
	r.Register("GlobalAveragePool", Op{Convert: globalPool("average")})
	r.Register("GlobalMaxPool", Op{Convert: globalPool("max")})
	r.Register("BatchNormalization", Op{Convert: convertBatchNorm, Supported: batchNormSupported})
}

// padSupported rejects automatic padding modes; only explicit pads translate.
func padSupported(node *onnx.NodeProto, _ int64) bool {
	mode := GetAttrString(node, "auto_pad", "NOTSET")
	return mode == "NOTSET"
}

func convertConv(ctx *Context, node *Node, inputs []*ir.Tensor) ([]*ir.Tensor, error) {
	if len(inputs) < 2 || len(inputs) > 3 {
		return nil, fmt.Errorf("Conv expects 2 or 3 inputs, got %d: %w", len(inputs), ErrMalformed)
	}
	if inputs[0] == nil {
		return nil, fmt.Errorf("Conv with constant data operand: %w", ErrMalformed)
	}
	if mode := GetAttrString(node.NodeProto, "auto_pad", "NOTSET"); mode != "NOTSET" {
		return nil, fmt.Errorf("Conv with auto_pad=%s: %w", mode, ErrUnsupported)
	}
	if inputs[1] != nil {
		return nil, fmt.Errorf("Conv with non-constant kernel: %w", ErrUnsupported)
	}

	kernel, err := ctx.Binder.Bind(node.Inputs[1], node.LayerName, ir.RoleKernel)
	if err != nil {
		return nil, err
	}
	layer := &ir.Layer{
		Name:   node.LayerName,
		Kind:   "convolution",
		Inputs: inputs[:1],
		Attrs: map[string]any{
			"kernel_shape": GetAttrInts(node.NodeProto, "kernel_shape"),
			"strides":      GetAttrInts(node.NodeProto, "strides"),
			"pads":         GetAttrInts(node.NodeProto, "pads"),
			"dilations":    GetAttrInts(node.NodeProto, "dilations"),
			"group":        GetAttrInt(node.NodeProto, "group", 1),
		},
		Weights: map[ir.WeightsRole]ir.Weights{ir.RoleKernel: kernel},
	}
	if len(inputs) == 3 && node.Inputs[2] != "" {
		bias, err := ctx.Binder.Bind(node.Inputs[2], node.LayerName, ir.RoleBias)
		if err != nil {
			return nil, err
		}
		layer.Weights[ir.RoleBias] = bias
	}

	out := ir.NewTensor(node.Outputs[0], inputs[0].DType(), convDims(inputs[0].Dims(), kernel.Dims, layer.Attrs))
	layer.Outputs = []*ir.Tensor{out}
	if err := ctx.Network.AddLayer(layer); err != nil {
		return nil, err
	}
	return layer.Outputs, nil
}

// convDims computes NCHW output dims when everything is static.
func convDims(in ir.Dims, kernel ir.Dims, attrs map[string]any) ir.Dims {
	if len(in) < 3 || len(kernel) != len(in) {
		return nil
	}
	out := make(ir.Dims, len(in))
	out[0] = in[0]
	out[1] = kernel[0]
	spatial := len(in) - 2
	strides, _ := attrs["strides"].([]int64)
	pads, _ := attrs["pads"].([]int64)
	dilations, _ := attrs["dilations"].([]int64)
	for i := 0; i < spatial; i++ {
		if in[i+2] < 0 {
			out[i+2] = -1
			continue
		}
		stride, dilation, padBefore, padAfter := int64(1), int64(1), int64(0), int64(0)
		if i < len(strides) {
			stride = strides[i]
		}
		if i < len(dilations) {
			dilation = dilations[i]
		}
		if i < len(pads) {
			padBefore = pads[i]
		}
		if i+spatial < len(pads) {
			padAfter = pads[i+spatial]
		}
		effective := (kernel[i+2]-1)*dilation + 1
		out[i+2] = (in[i+2]+padBefore+padAfter-effective)/stride + 1
	}
	return out
}

func pool(mode string) ConvertFunc {
	return func(ctx *Context, node *Node, inputs []*ir.Tensor) ([]*ir.Tensor, error) {
		if len(inputs) != 1 || inputs[0] == nil {
			return nil, fmt.Errorf("%s expects 1 tensor input: %w", node.OpType, ErrMalformed)
		}
		kernelShape := GetAttrInts(node.NodeProto, "kernel_shape")
		if len(kernelShape) == 0 {
			return nil, fmt.Errorf("%s is missing required attribute kernel_shape: %w", node.OpType, ErrMalformed)
		}
		attrs := map[string]any{
			"mode":         mode,
			"kernel_shape": kernelShape,
			"strides":      GetAttrInts(node.NodeProto, "strides"),
			"pads":         GetAttrInts(node.NodeProto, "pads"),
		}

		in := inputs[0].Dims()
		kernel := make(ir.Dims, len(in))
		if len(in) == len(kernelShape)+2 {
			kernel[0], kernel[1] = -1, -1
			copy(kernel[2:], kernelShape)
		}
		dims := convDims(in, kernel, attrs)
		if len(dims) > 1 && len(in) > 1 {
			dims[1] = in[1] // pooling preserves channels
		}
		out := ir.NewTensor(node.Outputs[0], inputs[0].DType(), dims)
		layer := &ir.Layer{
			Name:    node.LayerName,
			Kind:    "pooling",
			Inputs:  inputs,
			Outputs: []*ir.Tensor{out},
			Attrs:   attrs,
		}
		if err := ctx.Network.AddLayer(layer); err != nil {
			return nil, err
		}
		return layer.Outputs, nil
	}
}

func globalPool(mode string) ConvertFunc {
	return func(ctx *Context, node *Node, inputs []*ir.Tensor) ([]*ir.Tensor, error) {
		if len(inputs) != 1 || inputs[0] == nil {
			return nil, fmt.Errorf("%s expects 1 tensor input: %w", node.OpType, ErrMalformed)
		}
		in := inputs[0].Dims()
		dims := make(ir.Dims, len(in))
		copy(dims, in)
		for i := 2; i < len(dims); i++ {
			dims[i] = 1
		}
		out := ir.NewTensor(node.Outputs[0], inputs[0].DType(), dims)
		layer := &ir.Layer{
			Name:    node.LayerName,
			Kind:    "pooling",
			Inputs:  inputs,
			Outputs: []*ir.Tensor{out},
			Attrs:   map[string]any{"mode": mode, "global": true},
		}
		if err := ctx.Network.AddLayer(layer); err != nil {
			return nil, err
		}
		return layer.Outputs, nil
	}
}

// batchNormSupported rejects training-mode nodes, which produce running
// statistics the target IR has no representation for.
func batchNormSupported(node *onnx.NodeProto, _ int64) bool {
	return GetAttrInt(node, "training_mode", 0) == 0 && len(node.Outputs) == 1
}

// convertBatchNorm folds the running statistics into a scale layer:
// y = x*scale' + shift' with scale' = scale/sqrt(var+eps) and
// shift' = bias - mean*scale'.
func convertBatchNorm(ctx *Context, node *Node, inputs []*ir.Tensor) ([]*ir.Tensor, error) {
	if len(inputs) != 5 {
		return nil, fmt.Errorf("BatchNormalization expects 5 inputs, got %d: %w", len(inputs), ErrMalformed)
	}
	if inputs[0] == nil {
		return nil, fmt.Errorf("BatchNormalization with constant data operand: %w", ErrMalformed)
	}
	if len(node.Outputs) != 1 {
		return nil, fmt.Errorf("BatchNormalization with running-statistics outputs: %w", ErrUnsupported)
	}

	stats := make([][]float32, 4)
	roles := []ir.WeightsRole{ir.RoleScale, ir.RoleShift, ir.RoleConstant, ir.RoleConstant}
	for i := 0; i < 4; i++ {
		if inputs[i+1] != nil {
			return nil, fmt.Errorf("BatchNormalization with non-constant parameter %q: %w", node.Inputs[i+1], ErrUnsupported)
		}
		w, err := ctx.Binder.Bind(node.Inputs[i+1], node.LayerName, roles[i])
		if err != nil {
			return nil, err
		}
		stats[i], err = w.Float32s()
		if err != nil {
			return nil, fmt.Errorf("BatchNormalization parameter %q: %v: %w", node.Inputs[i+1], err, ErrUnsupported)
		}
	}
	scale, bias, mean, variance := stats[0], stats[1], stats[2], stats[3]
	if len(bias) != len(scale) || len(mean) != len(scale) || len(variance) != len(scale) {
		return nil, fmt.Errorf("BatchNormalization parameter lengths disagree: %w", ErrMalformed)
	}

	epsilon := GetAttrFloat(node.NodeProto, "epsilon", 1e-5)
	foldedScale := make([]byte, 4*len(scale))
	foldedShift := make([]byte, 4*len(scale))
	for i := range scale {
		s := scale[i] / float32(math.Sqrt(float64(variance[i])+float64(epsilon)))
		binary.LittleEndian.PutUint32(foldedScale[i*4:], math.Float32bits(s))
		binary.LittleEndian.PutUint32(foldedShift[i*4:], math.Float32bits(bias[i]-mean[i]*s))
	}

	channels := ir.Dims{int64(len(scale))}
	out := ir.NewTensor(node.Outputs[0], inputs[0].DType(), inputs[0].Dims())
	layer := &ir.Layer{
		Name:    node.LayerName,
		Kind:    "scale",
		Inputs:  inputs[:1],
		Outputs: []*ir.Tensor{out},
		Attrs:   map[string]any{"epsilon": epsilon},
		Weights: map[ir.WeightsRole]ir.Weights{
			ir.RoleScale: {DType: ir.Float32, Dims: channels, Data: foldedScale},
			ir.RoleShift: {DType: ir.Float32, Dims: channels, Data: foldedShift},
		},
	}
	if err := ctx.Network.AddLayer(layer); err != nil {
		return nil, err
	}
	return layer.Outputs, nil
}
