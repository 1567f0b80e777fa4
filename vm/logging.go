package vm

import (
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple" // registers the default backend
)

// loggerName is the commonlog namespace every component under vm logs
// under, with a dotted suffix per subsystem (e.g. "fletch.scheduler").
const loggerName = "fletch"

// NewLogger returns a named sub-logger for subsystem, obtained from
// commonlog's registered backend (commonlog/simple, unless the embedding
// binary registered another one before calling Setup).
func NewLogger(subsystem string) commonlog.Logger {
	if subsystem == "" {
		return commonlog.GetLogger(loggerName)
	}
	return commonlog.GetLogger(loggerName + "." + subsystem)
}
