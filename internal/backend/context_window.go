package backend

// DefaultContextSize is how many log entries accompany each request.
const DefaultContextSize = 10

// ContextWindow returns the last n messages of log, oldest first, tagged
// with their provider role. The log itself is not modified.
func ContextWindow(log []ChatMessage, n int) []ContextEntry {
	if n <= 0 || len(log) == 0 {
		return nil
	}
	start := len(log) - n
	if start < 0 {
		start = 0
	}
	out := make([]ContextEntry, 0, len(log)-start)
	for _, m := range log[start:] {
		out = append(out, ContextEntry{Role: m.Role(), Content: m.Content})
	}
	return out
}
