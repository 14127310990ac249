package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/ipguard/internal/ratelimit"
)

// RegisterRoutes registers the guarded host endpoints. Each operation names
// its traffic class through ratelimit.MetadataKey.
func RegisterRoutes(api huma.API, host *HostHandler) {
	// POST /forms/submit - user-driven traffic, escalates after repeated violations
	huma.Register(api, huma.Operation{
		OperationID: "submit-form",
		Method:      http.MethodPost,
		Path:        "/forms/submit",
		Summary:     "Submit a form",
		Tags:        []string{"Host"},
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{Class: ratelimit.ClassStandard},
		},
	}, host.SubmitForm)

	// POST /tasks/run - automated traffic, blocked on its first violation
	huma.Register(api, huma.Operation{
		OperationID: "run-task",
		Method:      http.MethodPost,
		Path:        "/tasks/run",
		Summary:     "Trigger a scheduled task",
		Tags:        []string{"Host"},
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{Class: ratelimit.ClassScheduled},
		},
	}, host.RunTask)
}

// RegisterAdminRoutes registers the operator API. These routes carry no
// limiter metadata and are never guarded.
func RegisterAdminRoutes(api huma.API, admin *AdminHandler) {
	tags := []string{"Admin"}

	huma.Register(api, huma.Operation{
		OperationID: "get-stats",
		Method:      http.MethodGet,
		Path:        "/admin/stats",
		Summary:     "Window sizes per class and client",
		Tags:        tags,
	}, admin.Stats)

	huma.Register(api, huma.Operation{
		OperationID: "list-blocked",
		Method:      http.MethodGet,
		Path:        "/admin/blocked",
		Summary:     "List blocked clients",
		Tags:        tags,
	}, admin.ListBlocked)

	huma.Register(api, huma.Operation{
		OperationID:   "unblock-client",
		Method:        http.MethodDelete,
		Path:          "/admin/blocked/{key}",
		Summary:       "Remove a client from the block list",
		Description:   "Violation counts are kept; the next violation may block the client again.",
		Tags:          tags,
		DefaultStatus: http.StatusNoContent,
	}, admin.Unblock)

	huma.Register(api, huma.Operation{
		OperationID: "get-client",
		Method:      http.MethodGet,
		Path:        "/admin/clients/{key}",
		Summary:     "Limiter state of a client",
		Tags:        tags,
	}, admin.GetClient)

	huma.Register(api, huma.Operation{
		OperationID:   "reset-client",
		Method:        http.MethodDelete,
		Path:          "/admin/clients/{key}",
		Summary:       "Reset all limiter state of a client",
		Tags:          tags,
		DefaultStatus: http.StatusNoContent,
	}, admin.ResetClient)

	huma.Register(api, huma.Operation{
		OperationID: "get-config",
		Method:      http.MethodGet,
		Path:        "/admin/config",
		Summary:     "Active limiter configuration",
		Tags:        tags,
	}, admin.GetConfig)

	huma.Register(api, huma.Operation{
		OperationID: "update-config",
		Method:      http.MethodPut,
		Path:        "/admin/config",
		Summary:     "Replace the limiter configuration",
		Tags:        tags,
	}, admin.UpdateConfig)

	huma.Register(api, huma.Operation{
		OperationID: "prune-windows",
		Method:      http.MethodPost,
		Path:        "/admin/prune",
		Summary:     "Drop expired window entries now",
		Tags:        tags,
	}, admin.Prune)
}
