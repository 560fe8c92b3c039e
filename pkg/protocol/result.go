package protocol

// ToolResult is the uniform envelope every tool returns. Data is only
// meaningful when Success is true; Error is only set when it is false.
type ToolResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK wraps data in a successful result.
func OK(data any) ToolResult {
	return ToolResult{Success: true, Data: data}
}

// Fail wraps an error message in a failed result.
func Fail(msg string) ToolResult {
	return ToolResult{Success: false, Error: msg}
}

// SystemInfo is the desk's static identity block. It never changes at
// runtime and requires no external calls to produce.
type SystemInfo struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
}
