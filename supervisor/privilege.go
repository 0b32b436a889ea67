package supervisor

import "github.com/justapithecus/leprechaun/log"

// WarnIfUnprivileged logs a warning when not running as root or an elevated
// administrator. Backends then cannot raise their priority or enable huge
// pages, which costs hashrate.
func WarnIfUnprivileged(logger *log.Logger) bool {
	if privileged() {
		return false
	}
	logger.Warn("not running with administrator privileges; backend hashrate may be reduced", nil)
	return true
}
