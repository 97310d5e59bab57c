// Copyright 2025 the onnx2ir project. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ir

import "fmt"

// Interface version, checked by the parser factory. A parser compiled
// against one version refuses builders reporting another.
const (
	InterfaceMajor = 1
	InterfaceMinor = 0
	InterfacePatch = 0

	InterfaceVersion = InterfaceMajor*10000 + InterfaceMinor*100 + InterfacePatch
)

// Layer is one construct in the target network. Converters fill Inputs with
// already-registered tensors, Outputs with freshly created ones, and Weights
// with blobs resolved through the weight binder.
type Layer struct {
	Name    string
	Kind    string
	Inputs  []*Tensor
	Outputs []*Tensor
	Attrs   map[string]any
	Weights map[WeightsRole]Weights
}

// Builder is the narrow surface the translation engine writes through.
// Implementations own layer semantics; the engine only wires structure.
type Builder interface {
	// BuilderVersion reports the interface version the implementation was
	// built against.
	BuilderVersion() int

	// AddInput declares a network input tensor.
	AddInput(name string, dtype DataType, dims Dims) (*Tensor, error)

	// AddLayer registers a layer and its output tensors. Output tensor
	// names must be unique within the network.
	AddLayer(layer *Layer) error

	// MarkOutput marks a registered tensor as a network output.
	MarkOutput(t *Tensor) error
}

// Network is the reference in-memory Builder implementation.
type Network struct {
	inputs  []*Tensor
	outputs []*Tensor
	layers  []*Layer
	tensors map[string]*Tensor
}

// NewNetwork creates an empty network.
func NewNetwork() *Network {
	return &Network{tensors: make(map[string]*Tensor)}
}

// BuilderVersion implements Builder.
func (n *Network) BuilderVersion() int { return InterfaceVersion }

// AddInput implements Builder.
func (n *Network) AddInput(name string, dtype DataType, dims Dims) (*Tensor, error) {
	if name == "" {
		return nil, fmt.Errorf("input tensor has no name")
	}
	if _, ok := n.tensors[name]; ok {
		return nil, fmt.Errorf("duplicate tensor name %q", name)
	}
	t := NewTensor(name, dtype, dims)
	n.tensors[name] = t
	n.inputs = append(n.inputs, t)
	return t, nil
}

// AddLayer implements Builder.
func (n *Network) AddLayer(layer *Layer) error {
	if layer.Kind == "" {
		return fmt.Errorf("layer %q has no kind", layer.Name)
	}
	for _, in := range layer.Inputs {
		if in == nil {
			continue
		}
		if _, ok := n.tensors[in.Name()]; !ok {
			return fmt.Errorf("layer %q consumes unregistered tensor %q", layer.Name, in.Name())
		}
	}
	for _, out := range layer.Outputs {
		if out.Name() == "" {
			return fmt.Errorf("layer %q produces an unnamed tensor", layer.Name)
		}
		if _, ok := n.tensors[out.Name()]; ok {
			return fmt.Errorf("duplicate tensor name %q", out.Name())
		}
	}
	for _, out := range layer.Outputs {
		n.tensors[out.Name()] = out
	}
	n.layers = append(n.layers, layer)
	return nil
}

// MarkOutput implements Builder.
func (n *Network) MarkOutput(t *Tensor) error {
	if _, ok := n.tensors[t.Name()]; !ok {
		return fmt.Errorf("output tensor %q is not registered", t.Name())
	}
	n.outputs = append(n.outputs, t)
	return nil
}

// Inputs returns the declared network inputs in declaration order.
func (n *Network) Inputs() []*Tensor { return n.inputs }

// Outputs returns the marked network outputs in marking order.
func (n *Network) Outputs() []*Tensor { return n.outputs }

// Layers returns the registered layers in insertion order.
func (n *Network) Layers() []*Layer { return n.layers }

// Tensor looks up a registered tensor by name.
func (n *Network) Tensor(name string) (*Tensor, bool) {
	t, ok := n.tensors[name]
	return t, ok
}

// Layer looks up a layer by name.
func (n *Network) Layer(name string) (*Layer, bool) {
	for _, l := range n.layers {
		if l.Name == name {
			return l, true
		}
	}
	return nil, false
}
