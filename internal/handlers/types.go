package handlers

import "time"

// SubmitFormRequest is the request body for a form submission.
type SubmitFormRequest struct {
	Body struct {
		Name    string `doc:"Sender name"  example:"Ada"   json:"name"    maxLength:"200"  minLength:"1"`
		Message string `doc:"Message body" example:"Hello" json:"message" maxLength:"5000"`
	}
}

// SubmitFormResponse acknowledges a form submission.
type SubmitFormResponse struct {
	Body struct {
		ID         string    `doc:"Submission ID"                   json:"id"`
		ClientKey  string    `doc:"Client the request was keyed on" json:"clientKey"`
		ReceivedAt time.Time `doc:"Time the submission was received" json:"receivedAt"`
	}
}

// RunTaskRequest is the request body for a scheduled task trigger.
type RunTaskRequest struct {
	Body struct {
		Task string `doc:"Task name" example:"refresh-cache" json:"task" maxLength:"100" minLength:"1"`
	}
}

// RunTaskResponse acknowledges a task trigger.
type RunTaskResponse struct {
	Body struct {
		ID         string    `doc:"Run ID"                          json:"id"`
		Task       string    `doc:"Task name"                       json:"task"`
		ClientKey  string    `doc:"Client the request was keyed on" json:"clientKey"`
		AcceptedAt time.Time `doc:"Time the run was accepted"       json:"acceptedAt"`
	}
}

// ClientKeyRequest addresses a single client.
type ClientKeyRequest struct {
	Key string `doc:"Client key, usually an IP address" example:"203.0.113.7" minLength:"1" path:"key"`
}

// StatsResponse reports window sizes per class and client.
type StatsResponse struct {
	Body struct {
		Windows map[string]map[string]int `doc:"Stored window sizes by class and client" json:"windows"`
		Blocked int                       `doc:"Number of blocked clients"              json:"blocked"`
	}
}

// BlockedClient is a single block list entry.
type BlockedClient struct {
	Key       string    `json:"key"`
	BlockedAt time.Time `json:"blockedAt"`
}

// BlockedResponse lists blocked clients.
type BlockedResponse struct {
	Body struct {
		Clients []BlockedClient `json:"clients"`
	}
}

// ClientResponse describes the limiter state of one client.
type ClientResponse struct {
	Body struct {
		Key        string         `json:"key"`
		Blocked    bool           `json:"blocked"`
		BlockedAt  *time.Time     `json:"blockedAt,omitempty"`
		Violations int64          `json:"violations"`
		Windows    map[string]int `doc:"Stored window size per class" json:"windows"`
	}
}

// ConfigBody is the operator view of the limiter configuration.
type ConfigBody struct {
	StandardWindowSeconds   int64    `json:"standardWindowSeconds"   maximum:"31536000" minimum:"1"`
	StandardMaxRequests     int      `json:"standardMaxRequests"     minimum:"1"`
	ScheduledWindowSeconds  int64    `json:"scheduledWindowSeconds"  maximum:"31536000" minimum:"1"`
	ScheduledMaxRequests    int      `json:"scheduledMaxRequests"    minimum:"1"`
	EscalationStrikeLimit   int64    `json:"escalationStrikeLimit"   minimum:"1"`
	AllowList               []string `json:"allowList"`
	AllowListExemptStandard bool     `json:"allowListExemptStandard"`
	BlockTTLSeconds         int64    `doc:"Zero keeps blocks until removed" json:"blockTtlSeconds" maximum:"31536000" minimum:"0"`
}

// ConfigResponse returns the active configuration.
type ConfigResponse struct {
	Body ConfigBody
}

// UpdateConfigRequest replaces the active configuration.
type UpdateConfigRequest struct {
	Body ConfigBody
}

// PruneResponse reports the windows changed by a prune pass.
type PruneResponse struct {
	Body struct {
		Pruned map[string]int `doc:"Windows changed per class" json:"pruned"`
	}
}
