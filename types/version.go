package types

// Version is the canonical project version.
// The CLI, envelope server and manifest export frames share this version.
const Version = "0.3.0"
