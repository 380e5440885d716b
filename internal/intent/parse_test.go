package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestParseIntent_WholeObject(t *testing.T) {
	in, err := ParseIntent(`{"name":"Yellow Flowers","symbol":"YELLOW","response":"ok"}`)
	require.NoError(t, err)
	assert.Equal(t, Intent{Name: strPtr("Yellow Flowers"), Symbol: strPtr("YELLOW"), Response: "ok"}, in)
	assert.True(t, in.Deploy())
}

func TestParseIntent_EmbeddedObject(t *testing.T) {
	in, err := ParseIntent(`here you go {"name":"X","symbol":"Y","response":"ok"} thanks`)
	require.NoError(t, err)
	assert.Equal(t, "X", in.NameOrEmpty())
	assert.Equal(t, "Y", in.SymbolOrEmpty())
	assert.Equal(t, "ok", in.Response)
}

func TestParseIntent_Conversational(t *testing.T) {
	in, err := ParseIntent("just chatting, no tokens here")
	require.NoError(t, err)
	assert.Nil(t, in.Name)
	assert.Nil(t, in.Symbol)
	assert.Equal(t, "just chatting, no tokens here", in.Response)
	assert.False(t, in.Deploy())
}

func TestParseIntent_StripsLineBreaks(t *testing.T) {
	in, err := ParseIntent("{\n  \"name\": \"Moon\",\n  \"symbol\": \"MOON\",\n  \"response\": \"to the\nmoon\"\n}\n")
	require.NoError(t, err)
	assert.Equal(t, "Moon", in.NameOrEmpty())
	assert.Equal(t, "to themoon", in.Response)

	in, err = ParseIntent("line one\nline two")
	require.NoError(t, err)
	assert.Equal(t, "line oneline two", in.Response)
}

func TestParseIntent_NullNameIsNoDeployment(t *testing.T) {
	in, err := ParseIntent(`{"name":null,"symbol":null,"response":"I only make tokens"}`)
	require.NoError(t, err)
	assert.False(t, in.Deploy())
	assert.Equal(t, "I only make tokens", in.Response)

	in, err = ParseIntent(`{"name":"Only Name","symbol":"","response":"hm"}`)
	require.NoError(t, err)
	assert.False(t, in.Deploy())
}

func TestParseIntent_UnbalancedWithoutClosingIsConversational(t *testing.T) {
	in, err := ParseIntent(`{"name":"X","symbol":`)
	require.NoError(t, err)
	assert.False(t, in.Deploy())
	assert.Equal(t, `{"name":"X","symbol":`, in.Response)
}

func TestParseIntent_Malformed(t *testing.T) {
	tests := []string{
		`{"name":"X","symbol":}`,
		`prefix {"name": "X"} middle {broken} suffix`,
		`oops } then {`,
		`{"name": 42, "symbol": "Y", "response": "r"}`,
	}
	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			_, err := ParseIntent(raw)
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}
