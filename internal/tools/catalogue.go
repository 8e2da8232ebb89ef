// Package tools implements the read-only tool surface offered to the language
// model: a fixed catalogue of tenant-scoped lookups, a router that validates
// arguments against JSON Schemas and time-boxes handlers, and a per-turn
// invoker that enforces the call budget, the turn-wide hard cap, and
// idempotent result caching.
package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/voxdesk-ai/voxdesk/internal/tenant"
)

// ErrEmpty is returned by handlers whose lookup succeeded but matched
// nothing, typically because the caller omitted a topic. The engine turns it
// into a clarifying question.
var ErrEmpty = errors.New("tools: no matching records")

// Handler executes one tool against the tenant store. args have already been
// validated against the tool's schema and carry the injected tenant id.
type Handler func(ctx context.Context, store tenant.Store, snap *tenant.Snapshot, args map[string]any) (any, error)

// Tool is one catalogue entry.
type Tool struct {
	Name        string
	Description string

	// Schema is the JSON Schema for the tool's arguments. tenant_id is
	// required everywhere and always injected by the router, never taken
	// from the model.
	Schema map[string]any

	Handler Handler
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// objectSchema builds a draft 2020-12 object schema with the given
// properties. tenant_id is added and required implicitly.
func objectSchema(props map[string]any, required ...string) map[string]any {
	full := map[string]any{
		"tenant_id": map[string]any{
			"type":        "string",
			"description": "Tenant identifier. Filled in automatically.",
		},
	}
	for k, v := range props {
		full[k] = v
	}
	req := []any{"tenant_id"}
	for _, r := range required {
		req = append(req, r)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           full,
		"required":             req,
		"additionalProperties": false,
	}
}

// Catalogue returns the fixed tool set. The router compiles the schemas once
// at construction.
func Catalogue() []Tool {
	return []Tool{
		{
			Name:        "get_latest_booking",
			Description: "Look up the caller's most recent booking by their phone number.",
			Schema: objectSchema(map[string]any{
				"customer_phone": map[string]any{
					"type":        "string",
					"description": "Caller phone number in E.164 format.",
				},
			}, "customer_phone"),
			Handler: func(ctx context.Context, store tenant.Store, snap *tenant.Snapshot, args map[string]any) (any, error) {
				return store.LatestBooking(ctx, snap.ID, stringArg(args, "customer_phone"))
			},
		},
		{
			Name:        "get_booking_by_id",
			Description: "Look up one booking by its identifier.",
			Schema: objectSchema(map[string]any{
				"booking_id": map[string]any{
					"type":        "string",
					"description": "Booking identifier.",
				},
			}, "booking_id"),
			Handler: func(ctx context.Context, store tenant.Store, snap *tenant.Snapshot, args map[string]any) (any, error) {
				return store.BookingByID(ctx, snap.ID, stringArg(args, "booking_id"))
			},
		},
		{
			Name:        "get_business_services",
			Description: "List the services this business offers, with prices and durations.",
			Schema:      objectSchema(nil),
			Handler: func(ctx context.Context, store tenant.Store, snap *tenant.Snapshot, _ map[string]any) (any, error) {
				services, err := store.Services(ctx, snap.ID)
				if err != nil {
					return nil, err
				}
				if len(services) == 0 {
					return nil, ErrEmpty
				}
				return services, nil
			},
		},
		{
			Name:        "get_working_hours",
			Description: "List the business opening hours by weekday.",
			Schema:      objectSchema(nil),
			Handler: func(ctx context.Context, store tenant.Store, snap *tenant.Snapshot, _ map[string]any) (any, error) {
				hours, err := store.WorkingHours(ctx, snap.ID)
				if err != nil {
					return nil, err
				}
				if len(hours) == 0 {
					return nil, ErrEmpty
				}
				return hours, nil
			},
		},
		{
			Name:        "get_policies",
			Description: "Look up business policies for a topic such as cancellation or payment.",
			Schema: objectSchema(map[string]any{
				"topic": map[string]any{
					"type":        "string",
					"description": "Policy topic, e.g. \"cancellation\".",
				},
			}),
			Handler: func(ctx context.Context, store tenant.Store, snap *tenant.Snapshot, args map[string]any) (any, error) {
				policies, err := store.Policies(ctx, snap.ID, stringArg(args, "topic"))
				if err != nil {
					return nil, err
				}
				if len(policies) == 0 {
					return nil, ErrEmpty
				}
				return policies, nil
			},
		},
		{
			Name:        "get_faqs",
			Description: "Look up frequently asked questions for a topic.",
			Schema: objectSchema(map[string]any{
				"topic": map[string]any{
					"type":        "string",
					"description": "FAQ topic, e.g. \"parking\".",
				},
			}),
			Handler: func(ctx context.Context, store tenant.Store, snap *tenant.Snapshot, args map[string]any) (any, error) {
				faqs, err := store.FAQs(ctx, snap.ID, stringArg(args, "topic"))
				if err != nil {
					return nil, err
				}
				if len(faqs) == 0 {
					return nil, ErrEmpty
				}
				return faqs, nil
			},
		},
	}
}

// ByName indexes a catalogue slice by tool name.
func ByName(catalogue []Tool) (map[string]Tool, error) {
	out := make(map[string]Tool, len(catalogue))
	for _, t := range catalogue {
		if _, dup := out[t.Name]; dup {
			return nil, fmt.Errorf("tools: duplicate tool %q", t.Name)
		}
		out[t.Name] = t
	}
	return out, nil
}
