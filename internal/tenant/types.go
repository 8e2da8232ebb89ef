// Package tenant holds the tenant configuration model, the store interface
// behind the read-only tools, and the TTL resolver cache consulted at call
// setup.
package tenant

import "time"

// VoiceConfig selects the synthesis voice for a tenant's calls.
type VoiceConfig struct {
	// Provider names the TTS backend, e.g. "deepgram".
	Provider string

	// Voice is the provider voice name or a registered alias.
	Voice string

	// SampleRate is the output sample rate in Hz.
	SampleRate int

	// Encoding is the output codec, e.g. "mulaw".
	Encoding string
}

// ToolPolicy bounds tool usage within one assistant turn.
type ToolPolicy struct {
	// MaxCallsPerTurn caps tool invocations per assistant turn.
	MaxCallsPerTurn int

	// PerCallTimeout bounds a single tool invocation.
	PerCallTimeout time.Duration

	// TurnBudget bounds the total time spent in tools per turn.
	TurnBudget time.Duration
}

// Snapshot is a tenant's configuration, immutable for the duration of a call.
type Snapshot struct {
	// ID is the tenant key, e.g. "acme-plumb".
	ID string

	// DisplayName is the business name spoken to callers.
	DisplayName string

	// Industry tags the business, e.g. "plumbing", "dental".
	Industry string

	// Language is the BCP-47 recognition and synthesis language.
	Language string

	// Tone hints the assistant's register, e.g. "friendly", "formal".
	Tone string

	// DialedNumber is the tenant's inbound phone number.
	DialedNumber string

	// GreetingText is spoken at call start.
	GreetingText string

	// GreetingAudioURL optionally points at pre-rendered greeting audio.
	GreetingAudioURL string

	// Voice selects the synthesis voice.
	Voice VoiceConfig

	// PromptVars are extra template variables for the system prompt.
	PromptVars map[string]string

	// Tools bounds tool usage per turn.
	Tools ToolPolicy

	// Generic marks the degraded snapshot served for unknown tenants.
	// Tenant-scoped tool lookups fail with NotFound on a generic snapshot.
	Generic bool
}

// Service is one offered service of a business.
type Service struct {
	Name        string
	Description string
	Price       string
	DurationMin int
}

// DayHours is one weekday's opening hours.
type DayHours struct {
	// Day is the lowercase English weekday name.
	Day string

	// Open and Close are "15:04" local times. Empty when Closed.
	Open  string
	Close string

	Closed bool
}

// Policy is one business policy, grouped by topic.
type Policy struct {
	Topic string
	Title string
	Body  string
}

// FAQ is one frequently asked question, grouped by topic.
type FAQ struct {
	Topic    string
	Question string
	Answer   string
}

// Booking is one appointment record.
type Booking struct {
	ID            string
	TenantID      string
	CustomerName  string
	CustomerPhone string
	Service       string
	StartsAt      time.Time
	Status        string
	Notes         string
}
