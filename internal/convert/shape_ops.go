package convert

import (
	"fmt"

	"github.com/weldml/onnx2ir/ir"
)

// registerShapeOps adds tensor layout converters.
func (r *Registry) registerShapeOps() {
	r.Register("Reshape", Op{Convert: convertReshape})
	r.Register("Transpose", Op{Convert: convertTranspose})
	r.Register("Flatten", Op{Convert: convertFlatten})
	r.Register("Squeeze", Op{Convert: squeezeLike("squeeze")})
	r.Register("Unsqueeze", Op{Convert: squeezeLike("unsqueeze")})
}

func convertReshape(ctx *Context, node *Node, inputs []*ir.Tensor) ([]*ir.Tensor, error) {
	if len(inputs) != 2 || inputs[0] == nil {
		return nil, fmt.Errorf("Reshape expects a tensor input and a shape input: %w", ErrMalformed)
	}
	if inputs[1] != nil {
		return nil, fmt.Errorf("Reshape with non-constant shape: %w", ErrUnsupported)
	}
	w, err := ctx.Binder.Bind(node.Inputs[1], node.LayerName, ir.RoleConstant)
	if err != nil {
		return nil, err
	}
	shape, err := w.Int64s()
	if err != nil {
		return nil, fmt.Errorf("Reshape shape input: %v: %w", err, ErrMalformed)
	}

	in := inputs[0].Dims()
	dims := make(ir.Dims, len(shape))
	for i, v := range shape {
		switch {
		case v == 0 && i < len(in):
			dims[i] = in[i] // 0 copies the input dimension
		case v < 0:
			dims[i] = -1 // -1 is inferred
		default:
			dims[i] = v
		}
	}
	if vol, inVol := dims.Volume(), in.Volume(); vol < 0 && inVol >= 0 {
		// Infer the single -1 dimension when the input volume is known.
		known := int64(1)
		unknown := -1
		for i, v := range dims {
			if v < 0 {
				if unknown >= 0 {
					unknown = -2
					break
				}
				unknown = i
				continue
			}
			known *= v
		}
		if unknown >= 0 && known > 0 && inVol%known == 0 {
			dims[unknown] = inVol / known
		}
	}

	out := ir.NewTensor(node.Outputs[0], inputs[0].DType(), dims)
	layer := &ir.Layer{
		Name:    node.LayerName,
		Kind:    "shuffle",
		Inputs:  inputs[:1],
		Outputs: []*ir.Tensor{out},
		Attrs:   map[string]any{"reshape": shape},
	}
	if err := ctx.Network.AddLayer(layer); err != nil {
		return nil, err
	}
	return layer.Outputs, nil
}

func convertTranspose(ctx *Context, node *Node, inputs []*ir.Tensor) ([]*ir.Tensor, error) {
	if len(inputs) != 1 || inputs[0] == nil {
		return nil, fmt.Errorf("Transpose expects 1 tensor input: %w", ErrMalformed)
	}
	in := inputs[0].Dims()
	perm := GetAttrInts(node.NodeProto, "perm")
	if len(perm) == 0 {
		// Default permutation reverses the dimensions.
		perm = make([]int64, len(in))
		for i := range perm {
			perm[i] = int64(len(in) - 1 - i)
		}
	}

	dims := make(ir.Dims, len(perm))
	for i, p := range perm {
		if p < 0 || p >= int64(len(in)) {
			return nil, fmt.Errorf("Transpose perm entry %d out of range for rank %d: %w", p, len(in), ErrMalformed)
		}
		dims[i] = in[p]
	}
	out := ir.NewTensor(node.Outputs[0], inputs[0].DType(), dims)
	layer := &ir.Layer{
		Name:    node.LayerName,
		Kind:    "shuffle",
		Inputs:  inputs,
		Outputs: []*ir.Tensor{out},
		Attrs:   map[string]any{"perm": perm},
	}
	if err := ctx.Network.AddLayer(layer); err != nil {
		return nil, err
	}
	return layer.Outputs, nil
}

func convertFlatten(ctx *Context, node *Node, inputs []*ir.Tensor) ([]*ir.Tensor, error) {
	if len(inputs) != 1 || inputs[0] == nil {
		return nil, fmt.Errorf("Flatten expects 1 tensor input: %w", ErrMalformed)
	}
	in := inputs[0].Dims()
	axis := GetAttrInt(node.NodeProto, "axis", 1)
	if axis < 0 {
		axis += int64(len(in))
	}
	if axis < 0 || axis > int64(len(in)) {
		return nil, fmt.Errorf("Flatten axis %d out of range for rank %d: %w", axis, len(in), ErrMalformed)
	}

	outer, inner := int64(1), int64(1)
	for i, v := range in {
		if v < 0 {
			outer, inner = -1, -1
			break
		}
		if int64(i) < axis {
			outer *= v
		} else {
			inner *= v
		}
	}
	out := ir.NewTensor(node.Outputs[0], inputs[0].DType(), ir.Dims{outer, inner})
	layer := &ir.Layer{
		Name:    node.LayerName,
		Kind:    "shuffle",
		Inputs:  inputs,
		Outputs: []*ir.Tensor{out},
		Attrs:   map[string]any{"flatten_axis": axis},
	}
	if err := ctx.Network.AddLayer(layer); err != nil {
		return nil, err
	}
	return layer.Outputs, nil
}

// squeezeLike handles Squeeze and Unsqueeze, which moved axes from an
// attribute to a constant input in opset 13.
func squeezeLike(kind string) ConvertFunc {
	return func(ctx *Context, node *Node, inputs []*ir.Tensor) ([]*ir.Tensor, error) {
		if len(inputs) < 1 || len(inputs) > 2 || inputs[0] == nil {
			return nil, fmt.Errorf("%s expects a tensor input and optional axes: %w", node.OpType, ErrMalformed)
		}
		axes := GetAttrInts(node.NodeProto, "axes")
		if len(inputs) == 2 && node.Inputs[1] != "" {
			if inputs[1] != nil {
				return nil, fmt.Errorf("%s with non-constant axes: %w", node.OpType, ErrUnsupported)
			}
			w, err := ctx.Binder.Bind(node.Inputs[1], node.LayerName, ir.RoleConstant)
			if err != nil {
				return nil, err
			}
			if axes, err = w.Int64s(); err != nil {
				return nil, fmt.Errorf("%s axes input: %v: %w", node.OpType, err, ErrMalformed)
			}
		}

		in := inputs[0].Dims()
		dims, err := squeezeDims(kind, in, axes)
		if err != nil {
			return nil, fmt.Errorf("%s: %v: %w", node.OpType, err, ErrMalformed)
		}
		out := ir.NewTensor(node.Outputs[0], inputs[0].DType(), dims)
		layer := &ir.Layer{
			Name:    node.LayerName,
			Kind:    "shuffle",
			Inputs:  inputs[:1],
			Outputs: []*ir.Tensor{out},
			Attrs:   map[string]any{kind + "_axes": axes},
		}
		if err := ctx.Network.AddLayer(layer); err != nil {
			return nil, err
		}
		return layer.Outputs, nil
	}
}

func squeezeDims(kind string, in ir.Dims, axes []int64) (ir.Dims, error) {
	if kind == "unsqueeze" {
		rank := len(in) + len(axes)
		set := make(map[int64]bool, len(axes))
		for _, a := range axes {
			if a < 0 {
				a += int64(rank)
			}
			if a < 0 || a >= int64(rank) || set[a] {
				return nil, fmt.Errorf("bad unsqueeze axis %d for rank %d", a, rank)
			}
			set[a] = true
		}
		dims := make(ir.Dims, 0, rank)
		next := 0
		for i := 0; i < rank; i++ {
			if set[int64(i)] {
				dims = append(dims, 1)
				continue
			}
			dims = append(dims, in[next])
			next++
		}
		return dims, nil
	}

	set := make(map[int64]bool, len(axes))
	for _, a := range axes {
		if a < 0 {
			a += int64(len(in))
		}
		if a < 0 || a >= int64(len(in)) {
			return nil, fmt.Errorf("bad squeeze axis %d for rank %d", a, len(in))
		}
		set[a] = true
	}
	dims := make(ir.Dims, 0, len(in))
	for i, v := range in {
		if set[int64(i)] || (len(axes) == 0 && v == 1) {
			continue
		}
		dims = append(dims, v)
	}
	return dims, nil
}
