package convert

import (
	"fmt"

	"github.com/weldml/onnx2ir/internal/onnx"
	"github.com/weldml/onnx2ir/ir"
)

// registerCore adds elementwise, matrix and utility converters.
func (r *Registry) registerCore() {
	r.Register("Add", Op{Convert: elementwise("sum")})
	r.Register("Sub", Op{Convert: elementwise("sub")})
	r.Register("Mul", Op{Convert: elementwise("prod")})
	r.Register("Div", Op{Convert: elementwise("div")})
	r.Register("Pow", Op{Convert: elementwise("pow")})
	r.Register("MatMul", Op{Convert: convertMatMul})
	r.Register("Gemm", Op{Convert: convertGemm, Supported: gemmSupported})
	r.Register("Concat", Op{Convert: convertConcat})
	r.Register("Identity", Op{Convert: convertIdentity})
	r.Register("Constant", Op{Convert: convertConstant, Supported: constantSupported})
}

// elementwise builds a two-input elementwise layer. A constant operand is
// bound as a weight on the layer rather than a tensor edge.
func elementwise(kind string) ConvertFunc {
	return func(ctx *Context, node *Node, inputs []*ir.Tensor) ([]*ir.Tensor, error) {
		if len(inputs) != 2 {
			return nil, fmt.Errorf("%s expects 2 inputs, got %d: %w", node.OpType, len(inputs), ErrMalformed)
		}
		layer := &ir.Layer{
			Name:    node.LayerName,
			Kind:    "elementwise",
			Inputs:  inputs,
			Attrs:   map[string]any{"operation": kind},
			Weights: map[ir.WeightsRole]ir.Weights{},
		}
		var ref *ir.Tensor
		for _, in := range inputs {
			if in != nil {
				ref = in
			}
		}
		if ref == nil {
			// A single constant slot exists on the layer; folding two
			// constant operands belongs to the builder, not the translator.
			return nil, fmt.Errorf("%s with two constant operands: %w", node.OpType, ErrUnsupported)
		}
		for i, in := range inputs {
			if in != nil {
				continue
			}
			w, err := ctx.Binder.Bind(node.Inputs[i], node.LayerName, ir.RoleConstant)
			if err != nil {
				return nil, err
			}
			layer.Weights[ir.RoleConstant] = w
		}
		out := ir.NewTensor(node.Outputs[0], ref.DType(), ref.Dims())
		layer.Outputs = []*ir.Tensor{out}
		if err := ctx.Network.AddLayer(layer); err != nil {
			return nil, err
		}
		return layer.Outputs, nil
	}
}

func convertMatMul(ctx *Context, node *Node, inputs []*ir.Tensor) ([]*ir.Tensor, error) {
	if len(inputs) != 2 {
		return nil, fmt.Errorf("MatMul expects 2 inputs, got %d: %w", len(inputs), ErrMalformed)
	}
	if inputs[0] == nil {
		return nil, fmt.Errorf("MatMul with constant left operand: %w", ErrUnsupported)
	}
	layer := &ir.Layer{
		Name:    node.LayerName,
		Kind:    "matmul",
		Inputs:  inputs,
		Attrs:   map[string]any{},
		Weights: map[ir.WeightsRole]ir.Weights{},
	}

	aDims := inputs[0].Dims()
	var bDims ir.Dims
	if inputs[1] == nil {
		w, err := ctx.Binder.Bind(node.Inputs[1], node.LayerName, ir.RoleKernel)
		if err != nil {
			return nil, err
		}
		layer.Weights[ir.RoleKernel] = w
		bDims = w.Dims
	} else {
		bDims = inputs[1].Dims()
	}

	out := ir.NewTensor(node.Outputs[0], inputs[0].DType(), matMulDims(aDims, bDims))
	layer.Outputs = []*ir.Tensor{out}
	if err := ctx.Network.AddLayer(layer); err != nil {
		return nil, err
	}
	return layer.Outputs, nil
}

// matMulDims computes the result shape of A x B, preserving A's batch dims.
func matMulDims(a, b ir.Dims) ir.Dims {
	if len(a) < 2 || len(b) < 1 {
		return nil
	}
	out := make(ir.Dims, len(a))
	copy(out, a)
	out[len(out)-1] = b[len(b)-1]
	return out
}

// gemmSupported rejects the transposed-A form, which has no direct layer in
// the target IR.
func gemmSupported(node *onnx.NodeProto, _ int64) bool {
	return GetAttrInt(node, "transA", 0) == 0
}

func convertGemm(ctx *Context, node *Node, inputs []*ir.Tensor) ([]*ir.Tensor, error) {
	if len(inputs) < 2 || len(inputs) > 3 {
		return nil, fmt.Errorf("Gemm expects 2 or 3 inputs, got %d: %w", len(inputs), ErrMalformed)
	}
	if GetAttrInt(node.NodeProto, "transA", 0) != 0 {
		return nil, fmt.Errorf("Gemm with transA=1: %w", ErrUnsupported)
	}
	if inputs[0] == nil {
		return nil, fmt.Errorf("Gemm with constant A operand: %w", ErrUnsupported)
	}

	transB := GetAttrInt(node.NodeProto, "transB", 0)
	layer := &ir.Layer{
		Name:   node.LayerName,
		Kind:   "fully_connected",
		Inputs: inputs[:1],
		Attrs: map[string]any{
			"alpha":  GetAttrFloat(node.NodeProto, "alpha", 1.0),
			"beta":   GetAttrFloat(node.NodeProto, "beta", 1.0),
			"transB": transB != 0,
		},
		Weights: map[ir.WeightsRole]ir.Weights{},
	}

	var bDims ir.Dims
	if inputs[1] == nil {
		w, err := ctx.Binder.Bind(node.Inputs[1], node.LayerName, ir.RoleKernel)
		if err != nil {
			return nil, err
		}
		layer.Weights[ir.RoleKernel] = w
		bDims = w.Dims
	} else {
		layer.Inputs = inputs[:2]
		bDims = inputs[1].Dims()
	}
	if len(inputs) == 3 && node.Inputs[2] != "" {
		w, err := ctx.Binder.Bind(node.Inputs[2], node.LayerName, ir.RoleBias)
		if err != nil {
			return nil, err
		}
		layer.Weights[ir.RoleBias] = w
	}

	aDims := inputs[0].Dims()
	dims := ir.Dims{-1, -1}
	if len(aDims) == 2 {
		dims[0] = aDims[0]
	}
	if len(bDims) == 2 {
		if transB != 0 {
			dims[1] = bDims[0]
		} else {
			dims[1] = bDims[1]
		}
	}
	out := ir.NewTensor(node.Outputs[0], inputs[0].DType(), dims)
	layer.Outputs = []*ir.Tensor{out}
	if err := ctx.Network.AddLayer(layer); err != nil {
		return nil, err
	}
	return layer.Outputs, nil
}

func convertConcat(ctx *Context, node *Node, inputs []*ir.Tensor) ([]*ir.Tensor, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("Concat expects at least 1 input: %w", ErrMalformed)
	}
	if !HasAttr(node.NodeProto, "axis") {
		return nil, fmt.Errorf("Concat is missing required attribute axis: %w", ErrMalformed)
	}
	for i, in := range inputs {
		if in == nil {
			return nil, fmt.Errorf("Concat with constant operand %q: %w", node.Inputs[i], ErrUnsupported)
		}
	}
	axis := GetAttrInt(node.NodeProto, "axis", 0)

	dims := concatDims(inputs, axis)
	out := ir.NewTensor(node.Outputs[0], inputs[0].DType(), dims)
	layer := &ir.Layer{
		Name:    node.LayerName,
		Kind:    "concat",
		Inputs:  inputs,
		Outputs: []*ir.Tensor{out},
		Attrs:   map[string]any{"axis": axis},
	}
	if err := ctx.Network.AddLayer(layer); err != nil {
		return nil, err
	}
	return layer.Outputs, nil
}

func concatDims(inputs []*ir.Tensor, axis int64) ir.Dims {
	first := inputs[0].Dims()
	if axis < 0 {
		axis += int64(len(first))
	}
	if axis < 0 || axis >= int64(len(first)) {
		return nil
	}
	out := make(ir.Dims, len(first))
	copy(out, first)
	var total int64
	for _, in := range inputs {
		d := in.Dims()
		if len(d) != len(first) || d[axis] < 0 {
			out[axis] = -1
			return out
		}
		total += d[axis]
	}
	out[axis] = total
	return out
}

func convertIdentity(ctx *Context, node *Node, inputs []*ir.Tensor) ([]*ir.Tensor, error) {
	if len(inputs) != 1 || inputs[0] == nil {
		return nil, fmt.Errorf("Identity expects 1 tensor input: %w", ErrMalformed)
	}
	out := ir.NewTensor(node.Outputs[0], inputs[0].DType(), inputs[0].Dims())
	layer := &ir.Layer{
		Name:    node.LayerName,
		Kind:    "identity",
		Inputs:  inputs,
		Outputs: []*ir.Tensor{out},
	}
	if err := ctx.Network.AddLayer(layer); err != nil {
		return nil, err
	}
	return layer.Outputs, nil
}

// constantSupported requires the dense value attribute; sparse_value and the
// value_* shorthands are not translated.
func constantSupported(node *onnx.NodeProto, _ int64) bool {
	return GetAttrTensor(node, "value") != nil
}

func convertConstant(ctx *Context, node *Node, inputs []*ir.Tensor) ([]*ir.Tensor, error) {
	if len(inputs) != 0 {
		return nil, fmt.Errorf("Constant expects no inputs, got %d: %w", len(inputs), ErrMalformed)
	}
	value := GetAttrTensor(node.NodeProto, "value")
	if value == nil {
		return nil, fmt.Errorf("Constant without a dense value attribute: %w", ErrUnsupported)
	}
	w, err := WeightsFromTensor(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err, ErrMalformed)
	}
	out := ir.NewTensor(node.Outputs[0], w.DType, w.Dims)
	layer := &ir.Layer{
		Name:    node.LayerName,
		Kind:    "constant",
		Outputs: []*ir.Tensor{out},
		Weights: map[ir.WeightsRole]ir.Weights{ir.RoleConstant: w},
	}
	if err := ctx.Network.AddLayer(layer); err != nil {
		return nil, err
	}
	return layer.Outputs, nil
}
