package room

import (
	"strings"
	"testing"
)

func TestValidateContent(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"valid", "hello there", false},
		{"empty", "", true},
		{"max runes ok", strings.Repeat("a", MaxContentRunes), false},
		{"too many runes", strings.Repeat("a", MaxContentRunes+1), true},
		{"too many bytes", strings.Repeat("é", MaxContentBytes/2+1), true},
		{"invalid utf8", string([]byte{0xff, 0xfe}), true},
		{"unicode ok", "héllo wörld 🚀", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateContent(tc.content)
			if tc.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
