// Package logging builds consistent structured logrus field sets for the
// engine's components, so "what happened to which resource, how long did
// it take, did it fail" look the same whether logged from the
// orchestrator, the batch runner, or a store.
package logging

import (
	"time"

	"github.com/sirupsen/logrus"
)

// StandardFields is a chainable builder over a plain field map.
type StandardFields map[string]interface{}

// NewFields starts an empty field set.
func NewFields() StandardFields {
	return StandardFields{}
}

func (f StandardFields) Component(name string) StandardFields {
	f["component"] = name
	return f
}

func (f StandardFields) Operation(op string) StandardFields {
	f["operation"] = op
	return f
}

func (f StandardFields) Resource(resourceType, name string) StandardFields {
	f["resource_type"] = resourceType
	if name != "" {
		f["resource_name"] = name
	}
	return f
}

func (f StandardFields) Duration(d time.Duration) StandardFields {
	f["duration_ms"] = d.Milliseconds()
	return f
}

func (f StandardFields) Error(err error) StandardFields {
	if err != nil {
		f["error"] = err.Error()
	}
	return f
}

func (f StandardFields) UserID(id string) StandardFields {
	if id != "" {
		f["user_id"] = id
	}
	return f
}

func (f StandardFields) RequestID(id string) StandardFields {
	f["request_id"] = id
	return f
}

func (f StandardFields) TraceID(id string) StandardFields {
	f["trace_id"] = id
	return f
}

func (f StandardFields) StatusCode(code int) StandardFields {
	f["status_code"] = code
	return f
}

func (f StandardFields) Method(method string) StandardFields {
	f["method"] = method
	return f
}

func (f StandardFields) URL(url string) StandardFields {
	f["url"] = url
	return f
}

func (f StandardFields) Count(n int) StandardFields {
	f["count"] = n
	return f
}

func (f StandardFields) Size(bytes int64) StandardFields {
	f["size_bytes"] = bytes
	return f
}

func (f StandardFields) Version(v string) StandardFields {
	f["version"] = v
	return f
}

func (f StandardFields) Custom(key string, value interface{}) StandardFields {
	f[key] = value
	return f
}

// ToLogrus converts the field set for use with a logrus entry.
func (f StandardFields) ToLogrus() logrus.Fields {
	return logrus.Fields(f)
}

// DatabaseFields builds fields for a store operation against table.
func DatabaseFields(operation, table string) StandardFields {
	return NewFields().Component("database").Operation(operation).Resource("table", table)
}

// HTTPFields builds fields for an HTTP request/response pair.
func HTTPFields(method, url string, statusCode int) StandardFields {
	return NewFields().Component("http").Method(method).URL(url).StatusCode(statusCode)
}

// WorkflowFields builds fields for a discovery run operation.
func WorkflowFields(operation, id string) StandardFields {
	return NewFields().Component("workflow").Operation(operation).Resource("workflow", id)
}

// KubernetesFields builds fields for a Kubernetes resource operation.
func KubernetesFields(operation, resourceType, name, namespace string) StandardFields {
	f := NewFields().Component("kubernetes").Operation(operation).Resource(resourceType, name)
	if namespace != "" {
		f["namespace"] = namespace
	}
	return f
}

// AIFields builds fields for an LLM call.
func AIFields(operation, model string) StandardFields {
	return NewFields().Component("ai").Operation(operation).Custom("model", model)
}

// MetricsFields builds fields for a metric observation.
func MetricsFields(operation, metricName string, value interface{}) StandardFields {
	return NewFields().Component("metrics").Operation(operation).Custom("metric_name", metricName).Custom("value", value)
}

// SecurityFields builds fields for an authn/authz event.
func SecurityFields(operation, subject string) StandardFields {
	return NewFields().Component("security").Operation(operation).Custom("subject", subject)
}

// PerformanceFields builds fields for a timed operation's outcome.
func PerformanceFields(operation string, duration time.Duration, success bool) StandardFields {
	return NewFields().Component("performance").Operation(operation).Duration(duration).Custom("success", success)
}
