package ingress

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseInteraction(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Interaction
	}{
		{
			name: "ping",
			body: `{"type":1}`,
			want: Interaction{Kind: KindPing, Type: 1, UserID: "unknown"},
		},
		{
			name: "member wins over user",
			body: `{"type":2,"token":"a","member":{"user":{"id":"m"}},"user":{"id":"u"},"data":{"options":[{"value":"hi"},{"value":"ignored"}]}}`,
			want: Interaction{Kind: KindCommand, Type: 2, Token: "a", UserID: "m", Text: "hi"},
		},
		{
			name: "user fallback",
			body: `{"type":3,"token":"b","member":{},"user":{"id":"u"}}`,
			want: Interaction{Kind: KindComponent, Type: 3, Token: "b", UserID: "u"},
		},
		{
			name: "non string option",
			body: `{"type":2,"token":"c","data":{"options":[{"value":{"nested":true}}]}}`,
			want: Interaction{Kind: KindCommand, Type: 2, Token: "c", UserID: "unknown"},
		},
		{
			name: "unsupported",
			body: `{"type":5,"token":"d"}`,
			want: Interaction{Kind: KindUnsupported, Type: 5, Token: "d", UserID: "unknown"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInteraction([]byte(tt.body))
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseInteractionErrors(t *testing.T) {
	_, err := ParseInteraction([]byte(`[]`))
	require.Error(t, err)
	_, err = ParseInteraction([]byte(`{"type":-1}`))
	require.Error(t, err)
}
