package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// callSiteHook rewrites entry.Caller to the first frame outside logrus and
// this package, so file:line names the component that logged.
type callSiteHook struct {
	skip map[string]bool
}

func newCallSiteHook() *callSiteHook {
	self, _, _, _ := runtime.Caller(0)
	return &callSiteHook{skip: map[string]bool{
		"github.com/sirupsen/logrus":                true,
		funcPackage(runtime.FuncForPC(self).Name()): true,
	}}
}

func (h *callSiteHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *callSiteHook) Fire(entry *logrus.Entry) error {
	if frame, ok := h.callSite(); ok {
		entry.Caller = &frame
	}
	return nil
}

func (h *callSiteHook) callSite() (runtime.Frame, bool) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !h.skip[funcPackage(frame.Function)] {
			return frame, true
		}
		if !more {
			return runtime.Frame{}, false
		}
	}
}

// funcPackage trims a runtime function name such as
// "loanwatch/logger.(*Entry).Warn" to its import path.
func funcPackage(fn string) string {
	slash := strings.LastIndex(fn, "/")
	if dot := strings.Index(fn[slash+1:], "."); dot >= 0 {
		return fn[:slash+1+dot]
	}
	return fn
}
