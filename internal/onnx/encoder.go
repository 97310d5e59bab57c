package onnx

import (
	"encoding/binary"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Marshal encodes a model back to the ONNX wire format.
// Field numbers mirror the decoder; unknown fields are not preserved.
func Marshal(m *ModelProto) []byte {
	var b []byte
	if m.IRVersion != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.IRVersion)) //nolint:gosec // IR versions are small positive ints.
	}
	b = appendString(b, 2, m.ProducerName)
	b = appendString(b, 3, m.ProducerVersion)
	b = appendString(b, 4, m.Domain)
	if m.ModelVersion != 0 {
		b = protowire.AppendTag(b, 5, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.ModelVersion)) //nolint:gosec // Model versions are small positive ints.
	}
	b = appendString(b, 6, m.DocString)
	if m.Graph != nil {
		b = protowire.AppendTag(b, 7, protowire.BytesType)
		b = protowire.AppendBytes(b, appendGraph(nil, m.Graph))
	}
	for _, opset := range m.OpsetImport {
		b = protowire.AppendTag(b, 8, protowire.BytesType)
		b = protowire.AppendBytes(b, appendOpset(nil, opset))
	}
	for _, entry := range m.MetadataProps {
		b = protowire.AppendTag(b, 14, protowire.BytesType)
		b = protowire.AppendBytes(b, appendStringEntry(nil, entry))
	}
	return b
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendGraph(b []byte, g *GraphProto) []byte {
	for i := range g.Nodes {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, appendNode(nil, &g.Nodes[i]))
	}
	b = appendString(b, 2, g.Name)
	for i := range g.Initializers {
		b = protowire.AppendTag(b, 5, protowire.BytesType)
		b = protowire.AppendBytes(b, appendTensor(nil, &g.Initializers[i]))
	}
	b = appendString(b, 10, g.DocString)
	for i := range g.Inputs {
		b = protowire.AppendTag(b, 11, protowire.BytesType)
		b = protowire.AppendBytes(b, appendValueInfo(nil, &g.Inputs[i]))
	}
	for i := range g.Outputs {
		b = protowire.AppendTag(b, 12, protowire.BytesType)
		b = protowire.AppendBytes(b, appendValueInfo(nil, &g.Outputs[i]))
	}
	for i := range g.ValueInfo {
		b = protowire.AppendTag(b, 13, protowire.BytesType)
		b = protowire.AppendBytes(b, appendValueInfo(nil, &g.ValueInfo[i]))
	}
	return b
}

func appendNode(b []byte, n *NodeProto) []byte {
	for _, in := range n.Inputs {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, in)
	}
	for _, out := range n.Outputs {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, out)
	}
	b = appendString(b, 3, n.Name)
	b = appendString(b, 4, n.OpType)
	for i := range n.Attributes {
		b = protowire.AppendTag(b, 5, protowire.BytesType)
		b = protowire.AppendBytes(b, appendAttribute(nil, &n.Attributes[i]))
	}
	b = appendString(b, 6, n.DocString)
	b = appendString(b, 7, n.Domain)
	return b
}

func appendTensor(b []byte, t *TensorProto) []byte {
	for _, dim := range t.Dims {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(dim)) //nolint:gosec // Tensor dims are non-negative.
	}
	if t.DataType != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(t.DataType)) //nolint:gosec // Data type enum is non-negative.
	}
	if len(t.FloatData) > 0 {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, appendPackedFloats(nil, t.FloatData))
	}
	if len(t.Int32Data) > 0 {
		var packed []byte
		for _, v := range t.Int32Data {
			packed = protowire.AppendVarint(packed, uint64(uint32(v)))
		}
		b = protowire.AppendTag(b, 5, protowire.BytesType)
		b = protowire.AppendBytes(b, packed)
	}
	if len(t.Int64Data) > 0 {
		var packed []byte
		for _, v := range t.Int64Data {
			packed = protowire.AppendVarint(packed, uint64(v)) //nolint:gosec // Two's-complement round trip.
		}
		b = protowire.AppendTag(b, 7, protowire.BytesType)
		b = protowire.AppendBytes(b, packed)
	}
	b = appendString(b, 8, t.Name)
	if len(t.RawData) > 0 {
		b = protowire.AppendTag(b, 9, protowire.BytesType)
		b = protowire.AppendBytes(b, t.RawData)
	}
	b = appendString(b, 12, t.DocString)
	for _, entry := range t.ExternalData {
		b = protowire.AppendTag(b, 13, protowire.BytesType)
		b = protowire.AppendBytes(b, appendStringEntry(nil, entry))
	}
	if t.DataLocation != 0 {
		b = protowire.AppendTag(b, 14, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(t.DataLocation)) //nolint:gosec // Data location enum is non-negative.
	}
	return b
}

func appendValueInfo(b []byte, vi *ValueInfoProto) []byte {
	b = appendString(b, 1, vi.Name)
	if vi.Type != nil {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, appendType(nil, vi.Type))
	}
	b = appendString(b, 3, vi.DocString)
	return b
}

func appendType(b []byte, t *TypeProto) []byte {
	if t.TensorType != nil {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, appendTensorType(nil, t.TensorType))
	}
	return b
}

func appendTensorType(b []byte, t *TensorTypeProto) []byte {
	if t.ElemType != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(t.ElemType)) //nolint:gosec // Element type enum is non-negative.
	}
	if t.Shape != nil {
		var shape []byte
		for i := range t.Shape.Dims {
			shape = protowire.AppendTag(shape, 1, protowire.BytesType)
			shape = protowire.AppendBytes(shape, appendDimension(nil, &t.Shape.Dims[i]))
		}
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, shape)
	}
	return b
}

func appendDimension(b []byte, dim *DimensionProto) []byte {
	if dim.DimParam != "" {
		return appendString(b, 2, dim.DimParam)
	}
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(dim.DimValue)) //nolint:gosec // Two's-complement round trip.
}

func appendAttribute(b []byte, a *AttributeProto) []byte {
	b = appendString(b, 1, a.Name)
	switch a.Type {
	case AttributeProtoFloat:
		b = protowire.AppendTag(b, 2, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(a.F))
	case AttributeProtoInt:
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(a.I)) //nolint:gosec // Two's-complement round trip.
	case AttributeProtoString:
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, a.S)
	case AttributeProtoTensor:
		if a.T != nil {
			b = protowire.AppendTag(b, 5, protowire.BytesType)
			b = protowire.AppendBytes(b, appendTensor(nil, a.T))
		}
	case AttributeProtoFloats:
		b = protowire.AppendTag(b, 7, protowire.BytesType)
		b = protowire.AppendBytes(b, appendPackedFloats(nil, a.Floats))
	case AttributeProtoInts:
		var packed []byte
		for _, v := range a.Ints {
			packed = protowire.AppendVarint(packed, uint64(v)) //nolint:gosec // Two's-complement round trip.
		}
		b = protowire.AppendTag(b, 8, protowire.BytesType)
		b = protowire.AppendBytes(b, packed)
	case AttributeProtoStrings:
		for _, s := range a.Strings {
			b = protowire.AppendTag(b, 9, protowire.BytesType)
			b = protowire.AppendBytes(b, s)
		}
	}
	if a.Type != 0 {
		b = protowire.AppendTag(b, 20, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(a.Type)) //nolint:gosec // Attribute type enum is non-negative.
	}
	return b
}

func appendPackedFloats(b []byte, vs []float32) []byte {
	for _, v := range vs {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		b = append(b, buf[:]...)
	}
	return b
}

func appendOpset(b []byte, o OperatorSetID) []byte {
	b = appendString(b, 1, o.Domain)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(o.Version)) //nolint:gosec // Opset versions are small positive ints.
	return b
}

func appendStringEntry(b []byte, e StringStringEntry) []byte {
	b = appendString(b, 1, e.Key)
	b = appendString(b, 2, e.Value)
	return b
}
