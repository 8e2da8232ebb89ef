package deepgram

// auraVoices maps short voice aliases to Aura model identifiers. Tenant voice
// configuration stores the alias; anything not in the map is assumed to
// already be a full model name.
var auraVoices = map[string]string{
	"asteria": "aura-asteria-en", // American female (default)
	"luna":    "aura-luna-en",    // American female
	"stella":  "aura-stella-en",  // American female
	"athena":  "aura-athena-en",  // British female
	"hera":    "aura-hera-en",    // American female
	"orion":   "aura-orion-en",   // American male
	"arcas":   "aura-arcas-en",   // American male
	"perseus": "aura-perseus-en", // American male
	"angus":   "aura-angus-en",   // Irish male
	"orpheus": "aura-orpheus-en", // American male
	"helios":  "aura-helios-en",  // British male
	"zeus":    "aura-zeus-en",    // American male
}

// ResolveVoice maps a short alias to its Aura model identifier. Unknown
// values pass through unchanged so full model names keep working.
func ResolveVoice(name string) string {
	if model, ok := auraVoices[name]; ok {
		return model
	}
	return name
}

// Voices returns the registered alias list.
func Voices() []string {
	out := make([]string, 0, len(auraVoices))
	for alias := range auraVoices {
		out = append(out, alias)
	}
	return out
}
