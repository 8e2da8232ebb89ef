package call

import "testing"

func TestIsFarewell(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want bool
	}{
		{"bye", true},
		{"Bye!", true},
		{"goodbye", true},
		{"Thanks, bye", true},
		{"thanks, that's all", true},
		{"That's all.", true},
		{"No, that's it, thanks", true},
		{"nothing else", true},
		{"That’s all", true},

		{"thanks", false},
		{"thank you", false},
		{"thank you so much", false},
		{"maybe tomorrow", false},
		{"can you email me the details", false},
		{"what time do you open", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsFarewell(tt.text); got != tt.want {
			t.Errorf("IsFarewell(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
