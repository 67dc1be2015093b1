package publishedcontent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveLevel(t *testing.T) {
	tests := []struct {
		requested CacheLevel
		declared  CacheLevel
		want      CacheLevel
	}{
		{CacheLevelRequest, CacheLevelContent, CacheLevelRequest},
		{CacheLevelUnknown, CacheLevelContent, CacheLevelContent},
		{CacheLevelSnapshot, CacheLevelRequest, CacheLevelRequest},
		{CacheLevelContent, CacheLevelUnknown, CacheLevelContent},
		{CacheLevelUnknown, CacheLevelUnknown, CacheLevelNone},
		{CacheLevelElements, CacheLevelSnapshot, CacheLevelSnapshot},
		{CacheLevelElements, CacheLevelElements, CacheLevelElements},
		{CacheLevelNone, CacheLevelRequest, CacheLevelNone},
		{CacheLevelContent, CacheLevelSnapshot, CacheLevelContent},
	}

	for _, tt := range tests {
		t.Run(tt.requested.String()+"/"+tt.declared.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, EffectiveLevel(tt.requested, tt.declared))
		})
	}
}

func TestEffectiveLevelNeverUnknownWhenDeclared(t *testing.T) {
	levels := []CacheLevel{CacheLevelUnknown, CacheLevelNone, CacheLevelContent, CacheLevelSnapshot, CacheLevelRequest, CacheLevelElements}
	for _, a := range levels {
		for _, b := range levels {
			got := EffectiveLevel(a, b)
			assert.NotEqual(t, CacheLevelUnknown, got)
			assert.Equal(t, got, EffectiveLevel(b, a), "effective level must be symmetric")
		}
	}
}

func TestShorterThan(t *testing.T) {
	assert.True(t, CacheLevelNone.ShorterThan(CacheLevelRequest))
	assert.True(t, CacheLevelRequest.ShorterThan(CacheLevelContent))
	assert.True(t, CacheLevelContent.ShorterThan(CacheLevelSnapshot))
	assert.True(t, CacheLevelSnapshot.ShorterThan(CacheLevelElements))
	assert.False(t, CacheLevelElements.ShorterThan(CacheLevelRequest))
	assert.False(t, CacheLevelUnknown.ShorterThan(CacheLevelNone))
	assert.False(t, CacheLevelNone.ShorterThan(CacheLevelUnknown))
}

func TestParseCacheLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    CacheLevel
		wantErr bool
	}{
		{"", CacheLevelUnknown, false},
		{"none", CacheLevelNone, false},
		{" Content ", CacheLevelContent, false},
		{"SNAPSHOT", CacheLevelSnapshot, false},
		{"request", CacheLevelRequest, false},
		{"elements", CacheLevelElements, false},
		{"facade", CacheLevelElements, false},
		{"forever", CacheLevelUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCacheLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCacheLevelJSON(t *testing.T) {
	type doc struct {
		Level CacheLevel `json:"level"`
	}

	data, err := json.Marshal(doc{Level: CacheLevelSnapshot})
	require.NoError(t, err)
	assert.JSONEq(t, `{"level":"snapshot"}`, string(data))

	var d doc
	require.NoError(t, json.Unmarshal([]byte(`{"level":"request"}`), &d))
	assert.Equal(t, CacheLevelRequest, d.Level)

	assert.Error(t, json.Unmarshal([]byte(`{"level":"bogus"}`), &d))
}
