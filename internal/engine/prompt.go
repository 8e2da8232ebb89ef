package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/voxdesk-ai/voxdesk/internal/tenant"
)

// Known prompt variable keys. Anything else in the snapshot's PromptVars is
// appended verbatim under BUSINESS CONTEXT.
const (
	varServicesSummary = "services_summary"
	varHoursSummary    = "hours_summary"
	varPoliciesSummary = "policies_summary"
	varFAQsSummary     = "faqs_summary"
)

// BuildSystemPrompt assembles the voice-tuned system prompt from a tenant
// snapshot. Responses must stay short and unformatted because everything the
// model produces is spoken.
func BuildSystemPrompt(snap *tenant.Snapshot) string {
	name := snap.DisplayName
	if name == "" {
		name = "our business"
	}
	industry := snap.Industry
	if industry == "" {
		industry = "business"
	}
	tone := snap.Tone
	if tone == "" {
		tone = "warm, friendly, and professional"
	}
	language := snap.Language
	if language == "" {
		language = "en"
	}

	pick := func(key, fallback string) string {
		if v := snap.PromptVars[key]; v != "" {
			return v
		}
		return fallback
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are the AI receptionist for %s (%s).\n", name, industry)
	fmt.Fprintf(&sb, "Tone: %s. Language: %s. Be warm and concise (1-2 sentences).\n\n", tone, language)

	sb.WriteString("BUSINESS CONTEXT:\n")
	fmt.Fprintf(&sb, "- Services: %s\n", pick(varServicesSummary, "Use the get_business_services tool when asked."))
	fmt.Fprintf(&sb, "- Hours: %s\n", pick(varHoursSummary, "Use the get_working_hours tool when asked."))
	fmt.Fprintf(&sb, "- Policies: %s\n", pick(varPoliciesSummary, "Use the get_policies tool when asked."))
	fmt.Fprintf(&sb, "- FAQs: %s\n", pick(varFAQsSummary, "Use the get_faqs tool when asked."))
	for _, k := range sortedExtraVars(snap.PromptVars) {
		fmt.Fprintf(&sb, "- %s: %s\n", k, snap.PromptVars[k])
	}
	sb.WriteString("\n")

	sb.WriteString(`TOOLS POLICY:
- Use tools only to look up bookings, services, hours, policies, or FAQs the caller asks about.
- Booking lookups use the caller's phone number.
- If a tool reports an error or nothing found, ask a short clarifying question or offer to take a message.

VOICE CONVERSATION RULES:
- Keep responses SHORT: 1-2 sentences, 15-25 words max.
- Sound natural and warm, like a friendly human.
- Never use bullet points, lists, or formatted text.
- Don't say "I'm an AI", just be helpful.
- Do not say goodbye unless the caller's request is fully resolved.
- If unsure about anything, say "Let me check on that for you" and keep it brief.`)

	return sb.String()
}

// sortedExtraVars returns the non-standard prompt variable keys in stable
// order.
func sortedExtraVars(vars map[string]string) []string {
	known := map[string]bool{
		varServicesSummary: true,
		varHoursSummary:    true,
		varPoliciesSummary: true,
		varFAQsSummary:     true,
	}
	var keys []string
	for k := range vars {
		if !known[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
