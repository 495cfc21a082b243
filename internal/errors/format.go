package errors

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// asDocError finds the first DocError in err's chain.
func asDocError(err error) (*DocError, bool) {
	var de *DocError
	if As(err, &de) {
		return de, true
	}
	return nil, false
}

// FormatForCLI renders err for the terminal. Errors carrying a DocError get
// its cause, suggestion and code on separate lines; others print as-is.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}
	de, ok := asDocError(err)
	if !ok {
		return "Error: " + err.Error() + "\n"
	}

	var sb strings.Builder
	if de == err {
		sb.WriteString("Error: " + de.Message)
	} else {
		// Keep the context added by callers that wrapped the DocError.
		sb.WriteString("Error: " + strings.Replace(err.Error(), de.Error(), de.Message, 1))
	}
	if de.Cause != nil && de.Cause.Error() != de.Message {
		sb.WriteString(": " + de.Cause.Error())
	}
	sb.WriteString("\n")

	if de.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", de.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", de.Code)
	return sb.String()
}

// LogAttrs describes err as slog attributes. A DocError in the chain adds
// its code and category along with any details.
func LogAttrs(err error) []slog.Attr {
	if err == nil {
		return nil
	}
	attrs := []slog.Attr{slog.String("error", err.Error())}

	de, ok := asDocError(err)
	if !ok {
		return attrs
	}
	attrs = append(attrs,
		slog.String("error_code", de.Code),
		slog.String("category", string(de.Category)),
		slog.Bool("retryable", de.Retryable),
	)

	if len(de.Details) > 0 {
		keys := make([]string, 0, len(de.Details))
		for k := range de.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		details := make([]any, 0, len(keys))
		for _, k := range keys {
			details = append(details, slog.String(k, de.Details[k]))
		}
		attrs = append(attrs, slog.Group("details", details...))
	}
	return attrs
}
