package config

// Default configuration values.
const (
	DefaultChunkSize    = "64MiB"
	DefaultWorkers      = 0
	DefaultCount        = 10
	DefaultFormat       = FormatText
	DefaultNoColor      = false
	DefaultLogLevel     = "info"
	DefaultLogJSON      = false
	DefaultOTLPInsecure = false
	DefaultSampleRatio  = 0.0
)

// Output formats.
const (
	FormatText  = "text"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
	FormatTable = "table"
)

// Formats lists every supported output format.
var Formats = []string{FormatText, FormatJSON, FormatYAML, FormatTable}
