package convert

import (
	"fmt"

	"github.com/weldml/onnx2ir/ir"
)

// registerActivations adds unary activation converters.
func (r *Registry) registerActivations() {
	r.Register("Relu", Op{Convert: activation("relu", nil)})
	r.Register("Sigmoid", Op{Convert: activation("sigmoid", nil)})
	r.Register("Tanh", Op{Convert: activation("tanh", nil)})
	r.Register("LeakyRelu", Op{Convert: activation("leaky_relu", func(node *Node) map[string]any {
		return map[string]any{"alpha": GetAttrFloat(node.NodeProto, "alpha", 0.01)}
	})})
	r.Register("Elu", Op{Convert: activation("elu", func(node *Node) map[string]any {
		return map[string]any{"alpha": GetAttrFloat(node.NodeProto, "alpha", 1.0)}
	})})
	r.Register("Softmax", Op{Convert: convertSoftmax})
	r.Register("Clip", Op{Convert: convertClip})
}

// activation builds a single-input activation layer.
func activation(function string, attrFn func(*Node) map[string]any) ConvertFunc {
	return func(ctx *Context, node *Node, inputs []*ir.Tensor) ([]*ir.Tensor, error) {
		if len(inputs) != 1 || inputs[0] == nil {
			return nil, fmt.Errorf("%s expects 1 tensor input: %w", node.OpType, ErrMalformed)
		}
		attrs := map[string]any{"function": function}
		if attrFn != nil {
			for k, v := range attrFn(node) {
				attrs[k] = v
			}
		}
		out := ir.NewTensor(node.Outputs[0], inputs[0].DType(), inputs[0].Dims())
		layer := &ir.Layer{
			Name:    node.LayerName,
			Kind:    "activation",
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

func convertSoftmax(ctx *Context, node *Node, inputs []*ir.Tensor) ([]*ir.Tensor, error) {
	if len(inputs) != 1 || inputs[0] == nil {
		return nil, fmt.Errorf("Softmax expects 1 tensor input: %w", ErrMalformed)
	}
	// The default axis changed from 1 to -1 in opset 13.
	defaultAxis := int64(1)
	if ctx.Opset >= 13 {
		defaultAxis = -1
	}
	out := ir.NewTensor(node.Outputs[0], inputs[0].DType(), inputs[0].Dims())
	layer := &ir.Layer{
		Name:    node.LayerName,
		Kind:    "softmax",
		Inputs:  inputs,
		Outputs: []*ir.Tensor{out},
		Attrs:   map[string]any{"axis": GetAttrInt(node.NodeProto, "axis", defaultAxis)},
	}
	if err := ctx.Network.AddLayer(layer); err != nil {
		return nil, err
	}
	return layer.Outputs, nil
}

// convertClip accepts both encodings: min/max attributes (opset < 11) and
// constant min/max inputs (opset >= 11).
func convertClip(ctx *Context, node *Node, inputs []*ir.Tensor) ([]*ir.Tensor, error) {
	if len(inputs) < 1 || len(inputs) > 3 || inputs[0] == nil {
		return nil, fmt.Errorf("Clip expects a tensor input and optional bounds: %w", ErrMalformed)
	}
	attrs := map[string]any{
		"function": "clip",
		"min":      GetAttrFloat(node.NodeProto, "min", float32(-3.402823e+38)),
		"max":      GetAttrFloat(node.NodeProto, "max", float32(3.402823e+38)),
	}
	bounds := []string{"", "min", "max"}
	for i := 1; i < len(inputs); i++ {
		if node.Inputs[i] == "" {
			continue
		}
		if inputs[i] != nil {
			return nil, fmt.Errorf("Clip with non-constant %s bound: %w", bounds[i], ErrUnsupported)
		}
		w, err := ctx.Binder.Bind(node.Inputs[i], node.LayerName, ir.RoleConstant)
		if err != nil {
			return nil, err
		}
		vals, err := w.Float32s()
		if err != nil || len(vals) != 1 {
			return nil, fmt.Errorf("Clip %s bound is not a scalar float: %w", bounds[i], ErrUnsupported)
		}
		attrs[bounds[i]] = vals[0]
	}

	out := ir.NewTensor(node.Outputs[0], inputs[0].DType(), inputs[0].Dims())
	layer := &ir.Layer{
		Name:    node.LayerName,
		Kind:    "activation",
		Inputs:  inputs[:1],
		Outputs: []*ir.Tensor{out},
		Attrs:   attrs,
	}
	if err := ctx.Network.AddLayer(layer); err != nil {
		return nil, err
	}
	return layer.Outputs, nil
}
