// Copyright 2025 the onnx2ir project. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package ir defines the target intermediate representation the translation
// engine emits into.
//
// The engine only depends on the narrow Builder interface; Network is the
// reference in-memory implementation used by the CLI and by tests. Downstream
// compilers supply their own Builder and take over layer semantics, memory
// planning, and execution, none of which live here.
package ir
