package ratelimit

import "github.com/danielgtaylor/huma/v2"

// Class categorizes a request for rate limiting purposes.
// Each class owns an independent window, threshold and escalation policy.
type Class string

const (
	// ClassStandard applies to human-driven traffic such as form submissions.
	ClassStandard Class = "standard"
	// ClassScheduled applies to recurring automated requests such as cron triggers.
	ClassScheduled Class = "scheduled"
)

// Classes lists every defined class in a stable order.
func Classes() []Class {
	return []Class{ClassStandard, ClassScheduled}
}

// Valid reports whether c is one of the defined classes.
func (c Class) Valid() bool {
	return c == ClassStandard || c == ClassScheduled
}

// ClientKey identifies the caller a limit is tracked for, typically an IP address.
type ClientKey string

// MetadataKey is the key used to store guard config in operation metadata.
const MetadataKey = "rateLimit"

// EndpointConfig defines per-endpoint guard configuration.
// It is attached to Huma operations via the Metadata field; operations
// without it are not guarded.
type EndpointConfig struct {
	// Class selects the limiter class applied to the endpoint.
	// An empty Class is treated as ClassStandard.
	Class Class

	// Disabled skips rate limiting entirely for this endpoint.
	Disabled bool
}

// GetEndpointConfig extracts the EndpointConfig from operation metadata, if present.
func GetEndpointConfig(ctx huma.Context) *EndpointConfig {
	op := ctx.Operation()
	if op == nil || op.Metadata == nil {
		return nil
	}

	cfg, ok := op.Metadata[MetadataKey].(EndpointConfig)
	if !ok {
		return nil
	}

	if cfg.Class == "" {
		cfg.Class = ClassStandard
	}

	return &cfg
}
