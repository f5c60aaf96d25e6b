// Package stacktrace captures and formats goroutine stacks for
// error-classified spans.
package stacktrace

import (
	"fmt"
	"runtime"
	"strings"
)

// maxDepth caps how many frames Callers walks.
const maxDepth = 64

// Callers captures the calling goroutine's stack, skipping skip frames above
// the caller of Callers itself.
func Callers(skip int) []runtime.Frame {
	pcs := make([]uintptr, maxDepth)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}
	iter := runtime.CallersFrames(pcs[:n])
	var frames []runtime.Frame
	for {
		frame, more := iter.Next()
		frames = append(frames, frame)
		if !more {
			return frames
		}
	}
}

// Format renders one frame per line as "function (file:line)".
func Format(frames []runtime.Frame) string {
	var b strings.Builder
	for _, f := range frames {
		fmt.Fprintf(&b, "%s (%s:%d)\n", f.Function, f.File, f.Line)
	}
	return b.String()
}
