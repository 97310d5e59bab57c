// Copyright 2025 the onnx2ir project. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ir

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/x448/float16"
)

// DataType identifies the element type of a tensor or weight blob.
type DataType int

// Supported element types.
const (
	Float32 DataType = iota
	Float16
	BFloat16
	Float64
	Int8
	Int32
	Int64
	Uint8
	Bool
)

// Size returns the size of one element in bytes.
func (d DataType) Size() int {
	switch d {
	case Float16, BFloat16:
		return 2
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	default:
		return 1
	}
}

func (d DataType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Float16:
		return "float16"
	case BFloat16:
		return "bfloat16"
	case Float64:
		return "float64"
	case Int8:
		return "int8"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Bool:
		return "bool"
	default:
		return fmt.Sprintf("DataType(%d)", int(d))
	}
}

// Dims describes a tensor shape. A -1 entry is a dynamic dimension.
type Dims []int64

func (d Dims) String() string {
	parts := make([]string, len(d))
	for i, v := range d {
		if v < 0 {
			parts[i] = "?"
			continue
		}
		parts[i] = fmt.Sprintf("%d", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Volume returns the element count, or -1 if any dimension is dynamic.
func (d Dims) Volume() int64 {
	v := int64(1)
	for _, dim := range d {
		if dim < 0 {
			return -1
		}
		v *= dim
	}
	return v
}

// WeightsRole describes how a weight blob is consumed by a layer.
type WeightsRole int

// Weight roles.
const (
	RoleKernel WeightsRole = iota
	RoleBias
	RoleScale
	RoleShift
	RoleConstant
)

func (r WeightsRole) String() string {
	switch r {
	case RoleKernel:
		return "kernel"
	case RoleBias:
		return "bias"
	case RoleScale:
		return "scale"
	case RoleShift:
		return "shift"
	case RoleConstant:
		return "constant"
	default:
		return fmt.Sprintf("WeightsRole(%d)", int(r))
	}
}

// Weights is a bound constant blob handed to a layer.
type Weights struct {
	DType DataType
	Dims  Dims
	Data  []byte
}

// Count returns the number of elements in the blob.
func (w Weights) Count() int64 {
	if size := w.DType.Size(); size > 0 {
		return int64(len(w.Data) / size)
	}
	return 0
}

// Float32s decodes the blob to float32 values. Half-precision data is
// widened; integer types are rejected.
func (w Weights) Float32s() ([]float32, error) {
	switch w.DType {
	case Float32:
		out := make([]float32, len(w.Data)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(w.Data[i*4:]))
		}
		return out, nil
	case Float16:
		out := make([]float32, len(w.Data)/2)
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(w.Data[i*2:])).Float32()
		}
		return out, nil
	case BFloat16:
		out := make([]float32, len(w.Data)/2)
		for i := range out {
			out[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(w.Data[i*2:])) << 16)
		}
		return out, nil
	case Float64:
		out := make([]float32, len(w.Data)/8)
		for i := range out {
			out[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(w.Data[i*8:])))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot decode %s weights as float32", w.DType)
	}
}

// Int64s decodes the blob to int64 values. Int32 data is widened.
func (w Weights) Int64s() ([]int64, error) {
	switch w.DType {
	case Int64:
		out := make([]int64, len(w.Data)/8)
		for i := range out {
			out[i] = int64(binary.LittleEndian.Uint64(w.Data[i*8:])) //nolint:gosec // Two's-complement round trip.
		}
		return out, nil
	case Int32:
		out := make([]int64, len(w.Data)/4)
		for i := range out {
			out[i] = int64(int32(binary.LittleEndian.Uint32(w.Data[i*4:]))) //nolint:gosec // Two's-complement round trip.
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot decode %s weights as int64", w.DType)
	}
}

// Tensor is a symbolic value flowing between layers in the network.
type Tensor struct {
	name  string
	dtype DataType
	dims  Dims
}

// NewTensor creates a symbolic tensor. Layers producing it must register it
// with the network via AddLayer.
func NewTensor(name string, dtype DataType, dims Dims) *Tensor {
	return &Tensor{name: name, dtype: dtype, dims: dims}
}

// Name returns the tensor's unique name.
func (t *Tensor) Name() string { return t.name }

// DType returns the element type.
func (t *Tensor) DType() DataType { return t.dtype }

// Dims returns the shape. Entries may be -1 for dynamic dimensions.
func (t *Tensor) Dims() Dims { return t.dims }

// SetDims replaces the shape, used when a later layer refines it.
func (t *Tensor) SetDims(dims Dims) { t.dims = dims }
