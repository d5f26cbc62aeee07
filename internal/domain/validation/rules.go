package validation

// ServedMethods lists the MCP methods hrgate answers. hrgate is a tools-only
// server: resources, prompts, sampling and roots are not offered, so those
// methods are rejected with ErrCodeMethodNotFound.
var ServedMethods = map[string]bool{
	"initialize":                true,
	"notifications/initialized": true,
	"notifications/cancelled":   true,
	"ping":                      true,
	"tools/list":                true,
	"tools/call":                true,
}

// IsServedMethod reports whether method is answered by hrgate.
// Method names are case-sensitive.
func IsServedMethod(method string) bool {
	return ServedMethods[method]
}
