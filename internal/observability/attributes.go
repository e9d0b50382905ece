// Package observability provides metrics and attribute helpers.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrMethod = "method"
	attrPath   = "path"
	attrStatus = "status"
	attrState  = "state"
	attrEvent  = "event"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	// Normalize paths with IDs to reduce cardinality
	// /v1/downloads/abc123 -> /v1/downloads/{id}
	return attribute.String(attrPath, normalizePath(path))
}

func statusAttr(code int) attribute.KeyValue {
	// Group status codes to reduce cardinality
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	group := fmt.Sprintf("%dxx", code/100)
	return attribute.String(attrStatus, group)
}

func statusNameAttr(status string) attribute.KeyValue {
	return attribute.String(attrState, status)
}

func eventTypeAttr(eventType string) attribute.KeyValue {
	return attribute.String(attrEvent, eventType)
}

// normalizePath replaces dynamic path segments with placeholders.
func normalizePath(path string) string {
	const prefix = "/v1/downloads/"
	if strings.HasPrefix(path, prefix) && len(path) > len(prefix) {
		rest := path[len(prefix):]
		// Literal collection routes, not IDs.
		switch rest {
		case "completed", "clear-queued", "clear-completed":
			return path
		}
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			return prefix + "{id}/" + rest[i+1:]
		}
		return prefix + "{id}"
	}
	return path
}
