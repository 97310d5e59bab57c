// Package onnx provides the source-graph model and its wire codec.
//
// The package implements a hand-written decoder for the ONNX protobuf format
// on top of protowire, without generated bindings.
//
// Key components:
//   - ModelProto: Top-level ONNX model structure with metadata and graph
//   - GraphProto: Computation graph with nodes, inputs, outputs, and initializers
//   - NodeProto: Single operation in the graph (e.g., Conv, MatMul, Relu)
//   - TensorProto: Weight/initializer tensor with data and shape
//   - ValueInfoProto: Input/output tensor type information
//
// Beyond the binary format, the package resolves externally stored weight
// payloads (data_location: EXTERNAL) relative to the model file, and accepts
// a protojson-style JSON text form of the same schema.
//
// Example usage:
//
//	model, err := onnx.Unmarshal(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Graph: %s with %d nodes\n", model.Graph.Name, len(model.Graph.Nodes))
package onnx
