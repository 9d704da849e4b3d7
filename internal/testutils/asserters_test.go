package testutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJSONAsserterDiff(t *testing.T) {
	ja := NewJSONAsserter(t)

	assert.Empty(t, ja.Diff(`{"id":"D1","name":"Widget","extra":1}`, `{"id":"D1","name":"Widget"}`),
		"extra actual keys MUST be ignored by default")
	assert.Empty(t, ja.Diff(`{"id":"D1","last_seen":"2025-01-01T00:00:00Z"}`, `{"id":"D1","last_seen":"<<PRESENCE>>"}`),
		"presence placeholder MUST match any value")
	assert.Empty(t, ja.Diff(`[{"id":"D1","ts":1}]`, `[{"id":"D1"}]`),
		"root arrays MUST be compared element-wise")
	assert.NotEmpty(t, ja.Diff(`{"id":"D2"}`, `{"id":"D1"}`))

	strict := NewJSONAsserter(t).WithOptions(WithIgnoreExtraKeys(false), WithIgnoredFields("ts"))
	assert.Empty(t, strict.Diff(`{"id":"D1","ts":5}`, `{"id":"D1","ts":9}`))
	assert.NotEmpty(t, strict.Diff(`{"id":"D1","extra":true}`, `{"id":"D1"}`))
}

func TestTextAsserterDiff(t *testing.T) {
	ta := NewTextAsserter(t)

	assert.Empty(t, ta.Diff("a  \nb\n\n", "a\nb"))
	diff := ta.Diff("a\nc", "a\nb")
	assert.Contains(t, diff, "-b")
	assert.Contains(t, diff, "+c")

	colored := NewTextAsserter(t).WithOptions(WithEnableColors(true), WithIgnoreEmptyLines(true)).Diff("x", "y")
	assert.Contains(t, colored, "\x1b[")
}
