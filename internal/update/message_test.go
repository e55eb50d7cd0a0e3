package update

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_ReservedValues(t *testing.T) {
	assert.Equal(t, Message(0), WillChange)
	assert.Equal(t, Message(1), Changed)
	assert.Equal(t, Message(2), Destroyed)
	assert.Equal(t, Message(3), WillDestroy)

	assert.True(t, Destroyed.IsReserved())
	assert.False(t, Message(42).IsReserved())
}

func TestMessage_String(t *testing.T) {
	assert.Equal(t, "changed", Changed.String())
	assert.Equal(t, "will_destroy", WillDestroy.String())
	assert.Equal(t, "42", Message(42).String())
	assert.Equal(t, "-7", Message(-7).String())
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		in   string
		want Message
	}{
		{"changed", Changed},
		{"Changed", Changed},
		{"will_change", WillChange},
		{"will-change", WillChange},
		{"WillDestroy", WillDestroy},
		{" destroyed ", Destroyed},
		{"1000", Message(1000)},
		{"-1", Message(-1)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMessage(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMessage_Invalid(t *testing.T) {
	for _, in := range []string{"", "bogus", "99999999999"} {
		_, err := ParseMessage(in)
		assert.Error(t, err, in)
	}
}

func TestParseMessage_RoundTrip(t *testing.T) {
	for _, m := range []Message{WillChange, Changed, Destroyed, WillDestroy, 77} {
		got, err := ParseMessage(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
}

func TestMessage_JSON(t *testing.T) {
	data, err := json.Marshal([]Message{Changed, 12})
	require.NoError(t, err)
	assert.JSONEq(t, `["changed","12"]`, string(data))

	var got []Message
	require.NoError(t, json.Unmarshal([]byte(`["will_destroy","-5"]`), &got))
	assert.Equal(t, []Message{WillDestroy, -5}, got)

	assert.Error(t, json.Unmarshal([]byte(`["nope"]`), &got))
}
