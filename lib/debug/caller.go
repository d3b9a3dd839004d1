package debug

import (
	"runtime"
	"strings"
)

// GetFullCallerName returns the package-qualified name of the calling function, e.g. "resolve.(*Resolver).lookupOne".
// Spans are named after it. skip defaults to 1, the immediate caller.
func GetFullCallerName(skip ...int) string {
	skipFrames := 1
	if len(skip) > 0 {
		skipFrames = skip[0]
	}
	pcs := make([]uintptr, 1)
	// runtime.Callers counts itself as frame 0, runtime.Caller does not
	if runtime.Callers(skipFrames+1, pcs) == 0 {
		return "unknown"
	}
	frame, _ := runtime.CallersFrames(pcs).Next()
	if frame.Function == "" {
		return "unknown"
	}
	name := frame.Function
	if lastSlash := strings.LastIndex(name, "/"); lastSlash != -1 {
		name = name[lastSlash+1:]
	}
	return name
}
