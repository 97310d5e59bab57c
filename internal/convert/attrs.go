package convert

import "github.com/weldml/onnx2ir/internal/onnx"

// HasAttr reports whether the node carries the named attribute.
func HasAttr(node *onnx.NodeProto, name string) bool {
	for i := range node.Attributes {
		if node.Attributes[i].Name == name {
			return true
		}
	}
	return false
}

// GetAttrInt returns an integer attribute or default value.
func GetAttrInt(node *onnx.NodeProto, name string, defaultVal int64) int64 {
	for i := range node.Attributes {
		if node.Attributes[i].Name == name {
			return node.Attributes[i].I
		}
	}
	return defaultVal
}

// GetAttrInts returns an integer array attribute.
func GetAttrInts(node *onnx.NodeProto, name string) []int64 {
	for i := range node.Attributes {
		if node.Attributes[i].Name == name {
			return node.Attributes[i].Ints
		}
	}
	return nil
}

// GetAttrFloat returns a float attribute or default value.
func GetAttrFloat(node *onnx.NodeProto, name string, defaultVal float32) float32 {
	for i := range node.Attributes {
		if node.Attributes[i].Name == name {
			return node.Attributes[i].F
		}
	}
	return defaultVal
}

// GetAttrString returns a string attribute or default value.
func GetAttrString(node *onnx.NodeProto, name, defaultVal string) string {
	for i := range node.Attributes {
		if node.Attributes[i].Name == name {
			return string(node.Attributes[i].S)
		}
	}
	return defaultVal
}

// GetAttrTensor returns a tensor attribute, or nil when absent.
func GetAttrTensor(node *onnx.NodeProto, name string) *onnx.TensorProto {
	for i := range node.Attributes {
		if node.Attributes[i].Name == name {
			return node.Attributes[i].T
		}
	}
	return nil
}
