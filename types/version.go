package types

// Version is the canonical project version.
// The CLI, status frames, and forwarded events all report this version.
const Version = "0.6.0"

// StatusFrameVersion is the version of the msgpack status frame layout.
// Bump it whenever a field is removed or changes meaning.
const StatusFrameVersion = 1
