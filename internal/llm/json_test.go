package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripCodeBlock(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  {\"a\":1}\n", `{"a":1}`},
		{"not a fence", "``` partial", "``` partial"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeBlock(tt.in))
		})
	}
}

func TestDecodeJSONTolerant(t *testing.T) {
	type plan struct {
		Route string `json:"route"`
	}

	var p plan
	require.NoError(t, DecodeJSON("```json\n{\"route\":\"retrieval\"}\n```", &p))
	assert.Equal(t, "retrieval", p.Route)

	p = plan{}
	require.NoError(t, DecodeJSON("Here is the plan:\n{\"route\":\"summary\"} hope that helps", &p))
	assert.Equal(t, "summary", p.Route)

	var arr []string
	require.NoError(t, DecodeJSON(`The queries are ["a", "b"]`, &arr))
	assert.Equal(t, []string{"a", "b"}, arr)
}

func TestDecodeJSONNested(t *testing.T) {
	var v map[string]any
	raw := `prefix {"outer": {"inner": [1, 2]}, "s": "brace } in string"} suffix`
	require.NoError(t, DecodeJSON(raw, &v))
	assert.Contains(t, v, "outer")
	assert.Equal(t, "brace } in string", v["s"])
}

func TestDecodeJSONNoJSON(t *testing.T) {
	var v map[string]any
	err := DecodeJSON("I cannot answer that.", &v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no json")
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&RetryableError{StatusCode: 503}))
	assert.False(t, IsRetryable(assert.AnError))
	assert.False(t, IsRetryable(nil))
}

func TestBackoffBounded(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		d := Backoff(attempt)
		assert.Positive(t, d)
		assert.LessOrEqual(t, d.Seconds(), 45.0)
	}
}
