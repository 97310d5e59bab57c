// Copyright 2025 the onnx2ir project. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package parser

// SubGraph is a maximal contiguous run of nodes sharing a support verdict.
type SubGraph struct {
	NodeIndices []int
	Supported   bool
}

// SubGraphCollection partitions a graph's node indices into maximal runs:
// every index appears in exactly one entry, and adjacent entries carry
// opposite support flags.
type SubGraphCollection []SubGraph

// Supported reports whether every node in the collection is translatable.
func (c SubGraphCollection) Supported() bool {
	for _, sg := range c {
		if !sg.Supported {
			return false
		}
	}
	return true
}

// partition builds the collection from per-node verdicts, extending each run
// until the verdict flips.
func partition(verdicts []bool) SubGraphCollection {
	var coll SubGraphCollection
	for i, v := range verdicts {
		if len(coll) == 0 || coll[len(coll)-1].Supported != v {
			coll = append(coll, SubGraph{Supported: v})
		}
		last := &coll[len(coll)-1]
		last.NodeIndices = append(last.NodeIndices, i)
	}
	return coll
}
