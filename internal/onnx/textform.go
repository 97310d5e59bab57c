package onnx

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// IsTextModel reports whether data looks like a JSON text-form model rather
// than the binary wire format.
func IsTextModel(data []byte) bool {
	for _, c := range data {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}

// UnmarshalText decodes the JSON text form of a model, as produced by
// protojson-style exporters (camelCase field names, base64 rawData).
func UnmarshalText(data []byte) (*ModelProto, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("failed to parse text model: invalid JSON")
	}
	root := gjson.ParseBytes(data)

	m := &ModelProto{
		IRVersion:       root.Get("irVersion").Int(),
		ProducerName:    root.Get("producerName").String(),
		ProducerVersion: root.Get("producerVersion").String(),
		Domain:          root.Get("domain").String(),
		ModelVersion:    root.Get("modelVersion").Int(),
	}
	for _, opset := range root.Get("opsetImport").Array() {
		m.OpsetImport = append(m.OpsetImport, OperatorSetID{
			Domain:  opset.Get("domain").String(),
			Version: opset.Get("version").Int(),
		})
	}

	graph := root.Get("graph")
	if !graph.Exists() {
		return m, nil
	}
	g := &GraphProto{Name: graph.Get("name").String()}
	for _, node := range graph.Get("node").Array() {
		n, err := textNode(node)
		if err != nil {
			return nil, fmt.Errorf("failed to parse text model: %w", err)
		}
		g.Nodes = append(g.Nodes, n)
	}
	for _, init := range graph.Get("initializer").Array() {
		t, err := textTensor(init)
		if err != nil {
			return nil, fmt.Errorf("failed to parse text model: %w", err)
		}
		g.Initializers = append(g.Initializers, t)
	}
	for _, in := range graph.Get("input").Array() {
		g.Inputs = append(g.Inputs, textValueInfo(in))
	}
	for _, out := range graph.Get("output").Array() {
		g.Outputs = append(g.Outputs, textValueInfo(out))
	}
	for _, vi := range graph.Get("valueInfo").Array() {
		g.ValueInfo = append(g.ValueInfo, textValueInfo(vi))
	}
	m.Graph = g
	return m, nil
}

func textNode(node gjson.Result) (NodeProto, error) {
	n := NodeProto{
		Name:   node.Get("name").String(),
		OpType: node.Get("opType").String(),
		Domain: node.Get("domain").String(),
	}
	for _, in := range node.Get("input").Array() {
		n.Inputs = append(n.Inputs, in.String())
	}
	for _, out := range node.Get("output").Array() {
		n.Outputs = append(n.Outputs, out.String())
	}
	for _, attr := range node.Get("attribute").Array() {
		a, err := textAttribute(attr)
		if err != nil {
			return NodeProto{}, fmt.Errorf("node %q: %w", n.Name, err)
		}
		n.Attributes = append(n.Attributes, a)
	}
	return n, nil
}

func textAttribute(attr gjson.Result) (AttributeProto, error) {
	a := AttributeProto{Name: attr.Get("name").String()}
	switch attr.Get("type").String() {
	case "FLOAT":
		a.Type = AttributeProtoFloat
		a.F = float32(attr.Get("f").Float())
	case "INT":
		a.Type = AttributeProtoInt
		a.I = attr.Get("i").Int()
	case "STRING":
		a.Type = AttributeProtoString
		a.S = []byte(attr.Get("s").String())
	case "FLOATS":
		a.Type = AttributeProtoFloats
		for _, v := range attr.Get("floats").Array() {
			a.Floats = append(a.Floats, float32(v.Float()))
		}
	case "INTS":
		a.Type = AttributeProtoInts
		for _, v := range attr.Get("ints").Array() {
			a.Ints = append(a.Ints, v.Int())
		}
	case "STRINGS":
		a.Type = AttributeProtoStrings
		for _, v := range attr.Get("strings").Array() {
			a.Strings = append(a.Strings, []byte(v.String()))
		}
	default:
		return AttributeProto{}, fmt.Errorf("attribute %q has unknown type %q", a.Name, attr.Get("type").String())
	}
	return a, nil
}

func textTensor(init gjson.Result) (TensorProto, error) {
	t := TensorProto{Name: init.Get("name").String()}
	var err error
	if t.DataType, err = textDataType(init.Get("dataType")); err != nil {
		return TensorProto{}, fmt.Errorf("initializer %q: %w", t.Name, err)
	}
	for _, dim := range init.Get("dims").Array() {
		t.Dims = append(t.Dims, dim.Int())
	}
	if raw := init.Get("rawData"); raw.Exists() {
		t.RawData, err = base64.StdEncoding.DecodeString(raw.String())
		if err != nil {
			return TensorProto{}, fmt.Errorf("initializer %q: bad rawData: %w", t.Name, err)
		}
	}
	for _, v := range init.Get("floatData").Array() {
		t.FloatData = append(t.FloatData, float32(v.Float()))
	}
	for _, v := range init.Get("int64Data").Array() {
		t.Int64Data = append(t.Int64Data, v.Int())
	}
	return t, nil
}

func textValueInfo(vi gjson.Result) ValueInfoProto {
	out := ValueInfoProto{Name: vi.Get("name").String()}
	tt := vi.Get("type.tensorType")
	if !tt.Exists() {
		return out
	}
	elem, err := textDataType(tt.Get("elemType"))
	if err != nil {
		elem = TensorProtoUndefined
	}
	shape := &TensorShapeProto{}
	for _, dim := range tt.Get("shape.dim").Array() {
		if p := dim.Get("dimParam"); p.Exists() {
			shape.Dims = append(shape.Dims, DimensionProto{DimParam: p.String()})
			continue
		}
		shape.Dims = append(shape.Dims, DimensionProto{DimValue: dim.Get("dimValue").Int()})
	}
	out.Type = &TypeProto{TensorType: &TensorTypeProto{ElemType: elem, Shape: shape}}
	return out
}

// textDataType accepts both the numeric enum value and the enum name.
func textDataType(v gjson.Result) (int32, error) {
	if v.Type == gjson.Number {
		return int32(v.Int()), nil //nolint:gosec // Data type enum fits in int32.
	}
	switch strings.ToUpper(v.String()) {
	case "FLOAT":
		return TensorProtoFloat, nil
	case "FLOAT16":
		return TensorProtoFloat16, nil
	case "BFLOAT16":
		return TensorProtoBfloat16, nil
	case "DOUBLE":
		return TensorProtoDouble, nil
	case "INT8":
		return TensorProtoInt8, nil
	case "INT32":
		return TensorProtoInt32, nil
	case "INT64":
		return TensorProtoInt64, nil
	case "UINT8":
		return TensorProtoUint8, nil
	case "BOOL":
		return TensorProtoBool, nil
	}
	return 0, fmt.Errorf("unknown data type %q", v.String())
}
