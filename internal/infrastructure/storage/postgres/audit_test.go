package postgres

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	tests := []struct {
		name     string
		old, new map[string]any
		want     map[string]any
	}{
		{
			name: "no changes",
			old:  map[string]any{"name": "Main", "priority": 1},
			new:  map[string]any{"name": "Main", "priority": 1},
			want: map[string]any{},
		},
		{
			name: "changed field",
			old:  map[string]any{"name": "Main"},
			new:  map[string]any{"name": "Backroom"},
			want: map[string]any{"name": map[string]any{"old": "Main", "new": "Backroom"}},
		},
		{
			name: "created from nothing",
			old:  nil,
			new:  map[string]any{"code": "PCS"},
			want: map[string]any{"code": map[string]any{"old": nil, "new": "PCS"}},
		},
		{
			name: "removed field",
			old:  map[string]any{"notes": "x"},
			new:  map[string]any{},
			want: map[string]any{"notes": map[string]any{"old": "x", "new": nil}},
		},
		{
			name: "equal decimals with different scale",
			old:  map[string]any{"factor": decimal.RequireFromString("12.0")},
			new:  map[string]any{"factor": decimal.RequireFromString("12")},
			want: map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Diff(tt.old, tt.new))
		})
	}
}

func TestAuditCompression(t *testing.T) {
	s, err := NewAuditService(nil, 64)
	require.NoError(t, err)
	defer s.Close()

	small := AuditEntry{Changes: json.RawMessage(`{"name":{"old":"a","new":"b"}}`)}
	s.compress(&small)
	assert.Equal(t, CompressionNone, small.CompressionAlgo)
	assert.Nil(t, small.ChangesCompressed)

	payload, err := json.Marshal(map[string]string{"notes": string(bytes.Repeat([]byte("pallet "), 100))})
	require.NoError(t, err)

	large := AuditEntry{Changes: payload}
	s.compress(&large)
	assert.Equal(t, CompressionZstd, large.CompressionAlgo)
	assert.Nil(t, large.Changes)
	assert.Less(t, len(large.ChangesCompressed), len(payload))

	require.NoError(t, s.decompress(&large))
	assert.JSONEq(t, string(payload), string(large.Changes))
}
