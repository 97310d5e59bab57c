// Copyright 2025 the onnx2ir project. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package parser

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrorCode classifies a translation diagnostic.
type ErrorCode int

// Diagnostic codes.
const (
	ErrSuccess ErrorCode = iota
	ErrInternal
	ErrMemAlloc
	ErrModelDeserialize
	ErrInvalidValue
	ErrInvalidGraph
	ErrInvalidNode
	ErrUnsupportedGraph
	ErrUnsupportedNode
)

func (c ErrorCode) String() string {
	switch c {
	case ErrSuccess:
		return "SUCCESS"
	case ErrInternal:
		return "INTERNAL_ERROR"
	case ErrMemAlloc:
		return "MEM_ALLOC_FAILED"
	case ErrModelDeserialize:
		return "MODEL_DESERIALIZE_FAILED"
	case ErrInvalidValue:
		return "INVALID_VALUE"
	case ErrInvalidGraph:
		return "INVALID_GRAPH"
	case ErrInvalidNode:
		return "INVALID_NODE"
	case ErrUnsupportedGraph:
		return "UNSUPPORTED_GRAPH"
	case ErrUnsupportedNode:
		return "UNSUPPORTED_NODE"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

// NodeSentinel marks a diagnostic that is not tied to a specific node.
const NodeSentinel = -1

// ParserError is one entry in the parser's diagnostic log.
type ParserError struct {
	Code ErrorCode
	Desc string
	File string // source file that recorded the diagnostic
	Line int
	Func string
	Node int // index of the offending node, or NodeSentinel
}

func (e ParserError) Error() string {
	if e.Node == NodeSentinel {
		return fmt.Sprintf("%s: %s", e.Code, e.Desc)
	}
	return fmt.Sprintf("%s: %s (node %d)", e.Code, e.Desc, e.Node)
}

// errorLog is the append-only diagnostic store shared by all passes of one
// parser instance. Entries survive across parse calls until clear.
type errorLog struct {
	entries []ParserError
}

// record appends a diagnostic, capturing the recording site.
func (l *errorLog) record(code ErrorCode, node int, format string, args ...any) {
	entry := ParserError{
		Code: code,
		Desc: fmt.Sprintf(format, args...),
		Node: node,
	}
	if pc, file, line, ok := runtime.Caller(1); ok {
		entry.File = filepath.Base(file)
		entry.Line = line
		if fn := runtime.FuncForPC(pc); fn != nil {
			name := fn.Name()
			if i := strings.LastIndex(name, "/"); i >= 0 {
				name = name[i+1:]
			}
			entry.Func = name
		}
	}
	l.entries = append(l.entries, entry)
}

func (l *errorLog) count() int {
	return len(l.entries)
}

// at returns the i-th diagnostic. Out-of-range access reports false instead
// of panicking.
func (l *errorLog) at(i int) (ParserError, bool) {
	if i < 0 || i >= len(l.entries) {
		return ParserError{}, false
	}
	return l.entries[i], true
}

func (l *errorLog) clear() {
	l.entries = nil
}
