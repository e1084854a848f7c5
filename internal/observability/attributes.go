// Package observability provides the gateway's OpenTelemetry metrics, exported to Prometheus.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrKind      = "kind"
	attrRunStatus = "run_status"
	attrErrorKind = "error_kind"
)

// ingestPrefix is the route prefix of the per-kind run endpoints.
const ingestPrefix = "/api/ingesta/"

var knownKinds = map[string]bool{
	"mongodb":    true,
	"mysql":      true,
	"postgresql": true,
	"health":     true,
}

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	return attribute.String(attrPath, normalizePath(path))
}

func statusAttr(code int) attribute.KeyValue {
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	group := fmt.Sprintf("%dxx", code/100)
	return attribute.String(attrStatus, group)
}

func kindAttr(kind string) attribute.KeyValue {
	return attribute.String(attrKind, kind)
}

func runStatusAttr(status string) attribute.KeyValue {
	return attribute.String(attrRunStatus, status)
}

func errorKindAttr(kind string) attribute.KeyValue {
	return attribute.String(attrErrorKind, kind)
}

// normalizePath collapses unknown job kinds so arbitrary paths do not create new series.
func normalizePath(path string) string {
	rest, ok := strings.CutPrefix(path, ingestPrefix)
	if !ok || rest == "" {
		return path
	}
	if knownKinds[rest] {
		return path
	}
	return ingestPrefix + "{kind}"
}
