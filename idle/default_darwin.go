package idle

// DefaultProbe reads HIDIdleTime from the IOHIDSystem registry entry.
func DefaultProbe() Probe {
	return &CommandProbe{Path: "/usr/sbin/ioreg", Args: []string{"-c", "IOHIDSystem", "-d", "4"}, Parse: ParseHIDIdle}
}
