package onnx

import (
	"encoding/binary"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Unmarshal decodes a serialized ONNX model.
func Unmarshal(data []byte) (*ModelProto, error) {
	m := &ModelProto{}
	if err := unmarshalModel(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	return m, nil
}

// decoder is a cursor over a single protobuf message body.
// Wire-level reads are delegated to protowire.
type decoder struct {
	b []byte
}

func (d *decoder) done() bool {
	return len(d.b) == 0
}

func (d *decoder) tag() (protowire.Number, protowire.Type, error) {
	num, typ, n := protowire.ConsumeTag(d.b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	d.b = d.b[n:]
	return num, typ, nil
}

func (d *decoder) varint() (int64, error) {
	v, n := protowire.ConsumeVarint(d.b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	d.b = d.b[n:]
	return int64(v), nil //nolint:gosec // ONNX varint fields fit in int64.
}

func (d *decoder) bytes() ([]byte, error) {
	v, n := protowire.ConsumeBytes(d.b)
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	d.b = d.b[n:]
	return v, nil
}

func (d *decoder) str() (string, error) {
	v, err := d.bytes()
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (d *decoder) float32() (float32, error) {
	v, n := protowire.ConsumeFixed32(d.b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	d.b = d.b[n:]
	return math.Float32frombits(v), nil
}

func (d *decoder) skip(num protowire.Number, typ protowire.Type) error {
	n := protowire.ConsumeFieldValue(num, typ, d.b)
	if n < 0 {
		return protowire.ParseError(n)
	}
	d.b = d.b[n:]
	return nil
}

// int64s appends a repeated int64 field, handling both packed and
// unpacked encodings.
func (d *decoder) int64s(typ protowire.Type, dst []int64) ([]int64, error) {
	if typ != protowire.BytesType {
		v, err := d.varint()
		if err != nil {
			return nil, err
		}
		return append(dst, v), nil
	}
	data, err := d.bytes()
	if err != nil {
		return nil, err
	}
	sub := &decoder{b: data}
	for !sub.done() {
		v, err := sub.varint()
		if err != nil {
			return nil, err
		}
		dst = append(dst, v)
	}
	return dst, nil
}

// float32s appends a packed repeated float field.
func (d *decoder) float32s(dst []float32) ([]float32, error) {
	data, err := d.bytes()
	if err != nil {
		return nil, err
	}
	for i := 0; i+4 <= len(data); i += 4 {
		bits := binary.LittleEndian.Uint32(data[i:])
		dst = append(dst, math.Float32frombits(bits))
	}
	return dst, nil
}

// unmarshalModel reads a ModelProto message body.
func unmarshalModel(b []byte, m *ModelProto) error {
	d := &decoder{b: b}
	for !d.done() {
		num, typ, err := d.tag()
		if err != nil {
			return err
		}
		switch num {
		case 1: // ir_version
			m.IRVersion, err = d.varint()
		case 2: // producer_name
			m.ProducerName, err = d.str()
		case 3: // producer_version
			m.ProducerVersion, err = d.str()
		case 4: // domain
			m.Domain, err = d.str()
		case 5: // model_version
			m.ModelVersion, err = d.varint()
		case 6: // doc_string
			m.DocString, err = d.str()
		case 7: // graph
			var data []byte
			if data, err = d.bytes(); err == nil {
				m.Graph = &GraphProto{}
				err = unmarshalGraph(data, m.Graph)
			}
		case 8: // opset_import
			var data []byte
			if data, err = d.bytes(); err == nil {
				opset := OperatorSetID{}
				if err = unmarshalOpset(data, &opset); err == nil {
					m.OpsetImport = append(m.OpsetImport, opset)
				}
			}
		case 14: // metadata_props
			var data []byte
			if data, err = d.bytes(); err == nil {
				entry := StringStringEntry{}
				if err = unmarshalStringEntry(data, &entry); err == nil {
					m.MetadataProps = append(m.MetadataProps, entry)
				}
			}
		default:
			err = d.skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// unmarshalGraph reads a GraphProto message body.
func unmarshalGraph(b []byte, g *GraphProto) error {
	d := &decoder{b: b}
	for !d.done() {
		num, typ, err := d.tag()
		if err != nil {
			return err
		}
		switch num {
		case 1: // node
			var data []byte
			if data, err = d.bytes(); err == nil {
				node := NodeProto{}
				if err = unmarshalNode(data, &node); err == nil {
					g.Nodes = append(g.Nodes, node)
				}
			}
		case 2: // name
			g.Name, err = d.str()
		case 5: // initializer
			var data []byte
			if data, err = d.bytes(); err == nil {
				tensor := TensorProto{}
				if err = unmarshalTensor(data, &tensor); err == nil {
					g.Initializers = append(g.Initializers, tensor)
				}
			}
		case 10: // doc_string
			g.DocString, err = d.str()
		case 11: // input
			var data []byte
			if data, err = d.bytes(); err == nil {
				vi := ValueInfoProto{}
				if err = unmarshalValueInfo(data, &vi); err == nil {
					g.Inputs = append(g.Inputs, vi)
				}
			}
		case 12: // output
			var data []byte
			if data, err = d.bytes(); err == nil {
				vi := ValueInfoProto{}
				if err = unmarshalValueInfo(data, &vi); err == nil {
					g.Outputs = append(g.Outputs, vi)
				}
			}
		case 13: // value_info
			var data []byte
			if data, err = d.bytes(); err == nil {
				vi := ValueInfoProto{}
				if err = unmarshalValueInfo(data, &vi); err == nil {
					g.ValueInfo = append(g.ValueInfo, vi)
				}
			}
		default:
			err = d.skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// unmarshalNode reads a NodeProto message body.
func unmarshalNode(b []byte, n *NodeProto) error {
	d := &decoder{b: b}
	for !d.done() {
		num, typ, err := d.tag()
		if err != nil {
			return err
		}
		switch num {
		case 1: // input
			var s string
			if s, err = d.str(); err == nil {
				n.Inputs = append(n.Inputs, s)
			}
		case 2: // output
			var s string
			if s, err = d.str(); err == nil {
				n.Outputs = append(n.Outputs, s)
			}
		case 3: // name
			n.Name, err = d.str()
		case 4: // op_type
			n.OpType, err = d.str()
		case 5: // attribute
			var data []byte
			if data, err = d.bytes(); err == nil {
				attr := AttributeProto{}
				if err = unmarshalAttribute(data, &attr); err == nil {
					n.Attributes = append(n.Attributes, attr)
				}
			}
		case 6: // doc_string
			n.DocString, err = d.str()
		case 7: // domain
			n.Domain, err = d.str()
		default:
			err = d.skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// unmarshalTensor reads a TensorProto message body.
func unmarshalTensor(b []byte, t *TensorProto) error {
	d := &decoder{b: b}
	for !d.done() {
		num, typ, err := d.tag()
		if err != nil {
			return err
		}
		switch num {
		case 1: // dims
			t.Dims, err = d.int64s(typ, t.Dims)
		case 2: // data_type
			var v int64
			if v, err = d.varint(); err == nil {
				t.DataType = int32(v) //nolint:gosec // ONNX data type enum fits in int32.
			}
		case 4: // float_data (packed)
			t.FloatData, err = d.float32s(t.FloatData)
		case 5: // int32_data (packed)
			var vs []int64
			if vs, err = d.int64s(typ, nil); err == nil {
				for _, v := range vs {
					t.Int32Data = append(t.Int32Data, int32(v)) //nolint:gosec // ONNX int32_data fits in int32.
				}
			}
		case 7: // int64_data (packed)
			t.Int64Data, err = d.int64s(typ, t.Int64Data)
		case 8: // name
			t.Name, err = d.str()
		case 9: // raw_data
			t.RawData, err = d.bytes()
		case 12: // doc_string
			t.DocString, err = d.str()
		case 13: // external_data
			var data []byte
			if data, err = d.bytes(); err == nil {
				entry := StringStringEntry{}
				if err = unmarshalStringEntry(data, &entry); err == nil {
					t.ExternalData = append(t.ExternalData, entry)
				}
			}
		case 14: // data_location
			var v int64
			if v, err = d.varint(); err == nil {
				t.DataLocation = int32(v) //nolint:gosec // ONNX data location enum fits in int32.
			}
		default:
			err = d.skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// unmarshalValueInfo reads a ValueInfoProto message body.
func unmarshalValueInfo(b []byte, vi *ValueInfoProto) error {
	d := &decoder{b: b}
	for !d.done() {
		num, typ, err := d.tag()
		if err != nil {
			return err
		}
		switch num {
		case 1: // name
			vi.Name, err = d.str()
		case 2: // type
			var data []byte
			if data, err = d.bytes(); err == nil {
				vi.Type = &TypeProto{}
				err = unmarshalType(data, vi.Type)
			}
		case 3: // doc_string
			vi.DocString, err = d.str()
		default:
			err = d.skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// unmarshalType reads a TypeProto message body.
func unmarshalType(b []byte, t *TypeProto) error {
	d := &decoder{b: b}
	for !d.done() {
		num, typ, err := d.tag()
		if err != nil {
			return err
		}
		switch num {
		case 1: // tensor_type
			var data []byte
			if data, err = d.bytes(); err == nil {
				t.TensorType = &TensorTypeProto{}
				err = unmarshalTensorType(data, t.TensorType)
			}
		default:
			err = d.skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// unmarshalTensorType reads a TypeProto.Tensor message body.
func unmarshalTensorType(b []byte, t *TensorTypeProto) error {
	d := &decoder{b: b}
	for !d.done() {
		num, typ, err := d.tag()
		if err != nil {
			return err
		}
		switch num {
		case 1: // elem_type
			var v int64
			if v, err = d.varint(); err == nil {
				t.ElemType = int32(v) //nolint:gosec // ONNX element type enum fits in int32.
			}
		case 2: // shape
			var data []byte
			if data, err = d.bytes(); err == nil {
				t.Shape = &TensorShapeProto{}
				err = unmarshalShape(data, t.Shape)
			}
		default:
			err = d.skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// unmarshalShape reads a TensorShapeProto message body.
func unmarshalShape(b []byte, s *TensorShapeProto) error {
	d := &decoder{b: b}
	for !d.done() {
		num, typ, err := d.tag()
		if err != nil {
			return err
		}
		switch num {
		case 1: // dim
			var data []byte
			if data, err = d.bytes(); err == nil {
				dim := DimensionProto{}
				if err = unmarshalDimension(data, &dim); err == nil {
					s.Dims = append(s.Dims, dim)
				}
			}
		default:
			err = d.skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// unmarshalDimension reads a TensorShapeProto.Dimension message body.
func unmarshalDimension(b []byte, dim *DimensionProto) error {
	d := &decoder{b: b}
	for !d.done() {
		num, typ, err := d.tag()
		if err != nil {
			return err
		}
		switch num {
		case 1: // dim_value
			dim.DimValue, err = d.varint()
		case 2: // dim_param
			dim.DimParam, err = d.str()
		default:
			err = d.skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// unmarshalAttribute reads an AttributeProto message body.
func unmarshalAttribute(b []byte, a *AttributeProto) error {
	d := &decoder{b: b}
	for !d.done() {
		num, typ, err := d.tag()
		if err != nil {
			return err
		}
		switch num {
		case 1: // name
			a.Name, err = d.str()
		case 2: // f
			a.F, err = d.float32()
		case 3: // i
			a.I, err = d.varint()
		case 4: // s
			a.S, err = d.bytes()
		case 5: // t
			var data []byte
			if data, err = d.bytes(); err == nil {
				a.T = &TensorProto{}
				err = unmarshalTensor(data, a.T)
			}
		case 7: // floats (packed)
			a.Floats, err = d.float32s(a.Floats)
		case 8: // ints (packed)
			a.Ints, err = d.int64s(typ, a.Ints)
		case 9: // strings
			var data []byte
			if data, err = d.bytes(); err == nil {
				a.Strings = append(a.Strings, data)
			}
		case 13: // doc_string
			a.DocString, err = d.str()
		case 20: // type
			var v int64
			if v, err = d.varint(); err == nil {
				a.Type = int32(v) //nolint:gosec // ONNX attribute type enum fits in int32.
			}
		default:
			err = d.skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// unmarshalOpset reads an OperatorSetIdProto message body.
func unmarshalOpset(b []byte, o *OperatorSetID) error {
	d := &decoder{b: b}
	for !d.done() {
		num, typ, err := d.tag()
		if err != nil {
			return err
		}
		switch num {
		case 1: // domain
			o.Domain, err = d.str()
		case 2: // version
			o.Version, err = d.varint()
		default:
			err = d.skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// unmarshalStringEntry reads a StringStringEntryProto message body.
func unmarshalStringEntry(b []byte, e *StringStringEntry) error {
	d := &decoder{b: b}
	for !d.done() {
		num, typ, err := d.tag()
		if err != nil {
			return err
		}
		switch num {
		case 1: // key
			e.Key, err = d.str()
		case 2: // value
			e.Value, err = d.str()
		default:
			err = d.skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
