package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weldml/onnx2ir/internal/onnx"
	"github.com/weldml/onnx2ir/ir"
)

func TestDataTypeOf(t *testing.T) {
	for _, tc := range []struct {
		src  int32
		want ir.DataType
	}{
		{onnx.TensorProtoFloat, ir.Float32},
		{onnx.TensorProtoFloat16, ir.Float16},
		{onnx.TensorProtoBfloat16, ir.BFloat16},
		{onnx.TensorProtoDouble, ir.Float64},
		{onnx.TensorProtoInt64, ir.Int64},
		{onnx.TensorProtoBool, ir.Bool},
	} {
		got, err := DataTypeOf(tc.src)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := DataTypeOf(onnx.TensorProtoString)
	assert.Error(t, err)
	_, err = DataTypeOf(onnx.TensorProtoComplex64)
	assert.Error(t, err)
}

func TestWeightsFromTensorRaw(t *testing.T) {
	w, err := WeightsFromTensor(&onnx.TensorProto{
		Name:     "W",
		DataType: onnx.TensorProtoFloat,
		Dims:     []int64{2, 2},
		RawData:  float32Weights(ir.Dims{4}, 1, 2, 3, 4).Data,
	})
	require.NoError(t, err)
	assert.Equal(t, ir.Float32, w.DType)
	assert.Equal(t, ir.Dims{2, 2}, w.Dims)
	vals, err := w.Float32s()
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, vals)
}

func TestWeightsFromTensorLegacyFields(t *testing.T) {
	w, err := WeightsFromTensor(&onnx.TensorProto{
		Name:      "W",
		DataType:  onnx.TensorProtoFloat,
		Dims:      []int64{2},
		FloatData: []float32{1.5, -2},
	})
	require.NoError(t, err)
	vals, err := w.Float32s()
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, -2}, vals)

	w, err = WeightsFromTensor(&onnx.TensorProto{
		Name:      "axes",
		DataType:  onnx.TensorProtoInt64,
		Dims:      []int64{2},
		Int64Data: []int64{0, -1},
	})
	require.NoError(t, err)
	ints, err := w.Int64s()
	require.NoError(t, err)
	assert.Equal(t, []int64{0, -1}, ints)
}

func TestWeightsFromTensorSizeMismatch(t *testing.T) {
	_, err := WeightsFromTensor(&onnx.TensorProto{
		Name:     "W",
		DataType: onnx.TensorProtoFloat,
		Dims:     []int64{4},
		RawData:  []byte{0, 0, 0, 0}, // one float, shape says four
	})
	assert.Error(t, err)
}

func TestDimsOf(t *testing.T) {
	vi := &onnx.ValueInfoProto{
		Name: "X",
		Type: &onnx.TypeProto{TensorType: &onnx.TensorTypeProto{
			ElemType: onnx.TensorProtoFloat,
			Shape: &onnx.TensorShapeProto{Dims: []onnx.DimensionProto{
				{DimParam: "batch"},
				{DimValue: 3},
				{DimValue: 0}, // absent
			}},
		}},
	}
	assert.Equal(t, ir.Dims{-1, 3, -1}, DimsOf(vi))

	assert.Nil(t, DimsOf(&onnx.ValueInfoProto{Name: "untyped"}))
}

func TestAttrHelpers(t *testing.T) {
	node := &onnx.NodeProto{Attributes: []onnx.AttributeProto{
		{Name: "axis", Type: onnx.AttributeProtoInt, I: 2},
		{Name: "alpha", Type: onnx.AttributeProtoFloat, F: 0.1},
		{Name: "mode", Type: onnx.AttributeProtoString, S: []byte("reflect")},
		{Name: "pads", Type: onnx.AttributeProtoInts, Ints: []int64{1, 1}},
	}}

	assert.True(t, HasAttr(node, "axis"))
	assert.False(t, HasAttr(node, "beta"))
	assert.Equal(t, int64(2), GetAttrInt(node, "axis", 0))
	assert.Equal(t, int64(7), GetAttrInt(node, "missing", 7))
	assert.Equal(t, float32(0.1), GetAttrFloat(node, "alpha", 0))
	assert.Equal(t, "reflect", GetAttrString(node, "mode", ""))
	assert.Equal(t, "NOTSET", GetAttrString(node, "auto_pad", "NOTSET"))
	assert.Equal(t, []int64{1, 1}, GetAttrInts(node, "pads"))
	assert.Nil(t, GetAttrTensor(node, "value"))
}
