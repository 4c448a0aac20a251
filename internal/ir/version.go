package ir

// Version constants for the record format and engine.
const (
	// FormatVersion is the CSV rule format version.
	FormatVersion = "1"

	// EngineVersion is the HARPI engine version.
	EngineVersion = "0.1.0"
)
