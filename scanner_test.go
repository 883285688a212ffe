package streamhost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalancedObjectEnd(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string // "" means the object never closes
	}{
		{"flat", `{"tool": "x", "params": {}} tail`, `{"tool": "x", "params": {}}`},
		{"nested params", `{"tool": "a", "params": {"q": "{not json}"}} trailing`, `{"tool": "a", "params": {"q": "{not json}"}}`},
		{"brace in string", `{"msg": "use } carefully"} x`, `{"msg": "use } carefully"}`},
		{"escaped quote in string", `{"msg": "say \"}\" now"} x`, `{"msg": "say \"}\" now"}`},
		{"unterminated", `{"tool": "a"`, ""},
		{"unterminated nested", `{"params": {"a": {`, ""},
		{"close inside open string", `{"msg": "never ends`, ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			end, ok := balancedObjectEnd(tt.in, 0)
			if tt.want == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, tt.in[:end])
		})
	}
}

func TestBalancedObjectEnd_BackToBack(t *testing.T) {
	t.Parallel()
	s := `{"a": 1}{"b": 2}`
	end, ok := balancedObjectEnd(s, 0)
	require.True(t, ok)
	assert.Equal(t, `{"a": 1}`, s[:end])

	end2, ok := balancedObjectEnd(s, end)
	require.True(t, ok)
	assert.Equal(t, `{"b": 2}`, s[end:end2])
}
