package convert

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/weldml/onnx2ir/internal/onnx"
	"github.com/weldml/onnx2ir/ir"
)

// DataTypeOf maps a source element type onto the target IR's.
func DataTypeOf(onnxType int32) (ir.DataType, error) {
	switch onnxType {
	case onnx.TensorProtoFloat:
		return ir.Float32, nil
	case onnx.TensorProtoFloat16:
		return ir.Float16, nil
	case onnx.TensorProtoBfloat16:
		return ir.BFloat16, nil
	case onnx.TensorProtoDouble:
		return ir.Float64, nil
	case onnx.TensorProtoInt8:
		return ir.Int8, nil
	case onnx.TensorProtoInt32:
		return ir.Int32, nil
	case onnx.TensorProtoInt64:
		return ir.Int64, nil
	case onnx.TensorProtoUint8:
		return ir.Uint8, nil
	case onnx.TensorProtoBool:
		return ir.Bool, nil
	default:
		return 0, fmt.Errorf("element type %d has no IR equivalent", onnxType)
	}
}

// WeightsFromTensor converts an initializer into an IR weight blob.
// Legacy typed data fields are re-encoded little-endian.
func WeightsFromTensor(t *onnx.TensorProto) (ir.Weights, error) {
	dtype, err := DataTypeOf(t.DataType)
	if err != nil {
		return ir.Weights{}, fmt.Errorf("tensor %q: %w", t.Name, err)
	}

	var data []byte
	switch {
	case len(t.RawData) > 0:
		data = t.RawData
	case len(t.FloatData) > 0:
		data = make([]byte, 4*len(t.FloatData))
		for i, v := range t.FloatData {
			binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
		}
	case len(t.Int32Data) > 0:
		data = make([]byte, 4*len(t.Int32Data))
		for i, v := range t.Int32Data {
			binary.LittleEndian.PutUint32(data[i*4:], uint32(v))
		}
	case len(t.Int64Data) > 0:
		data = make([]byte, 8*len(t.Int64Data))
		for i, v := range t.Int64Data {
			binary.LittleEndian.PutUint64(data[i*8:], uint64(v)) //nolint:gosec // Two's-complement round trip.
		}
	}

	dims := make(ir.Dims, len(t.Dims))
	copy(dims, t.Dims)
	if vol := dims.Volume(); vol >= 0 && int64(len(data)) != vol*int64(dtype.Size()) {
		return ir.Weights{}, fmt.Errorf("tensor %q: data size %d does not match shape %s (%s)",
			t.Name, len(data), dims, dtype)
	}
	return ir.Weights{DType: dtype, Dims: dims, Data: data}, nil
}

// DimsOf extracts the declared shape of a graph tensor. Symbolic and absent
// dimensions come back as -1.
func DimsOf(vi *onnx.ValueInfoProto) ir.Dims {
	if vi.Type == nil || vi.Type.TensorType == nil || vi.Type.TensorType.Shape == nil {
		return nil
	}
	shape := vi.Type.TensorType.Shape
	dims := make(ir.Dims, len(shape.Dims))
	for i, d := range shape.Dims {
		if d.DimParam != "" || d.DimValue <= 0 {
			dims[i] = -1
			continue
		}
		dims[i] = d.DimValue
	}
	return dims
}
