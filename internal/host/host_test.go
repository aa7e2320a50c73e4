package host

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAppID(t *testing.T) {
	composite := uint64(1091500)<<32 | 0x02000000
	cases := []struct {
		in   any
		want uint32
	}{
		{uint32(570), 570},
		{570, 570},
		{int64(570), 570},
		{float64(570), 570},
		{"570", 570},
		{" 1091500 ", 1091500},
		{json.Number("730"), 730},
		{uint64(0xffffffff), 0xffffffff},
		{composite, 1091500},
		{"4687956837138432", 1091500},
	}
	for _, c := range cases {
		got, err := NormalizeAppID(c.in)
		require.NoError(t, err, "%v", c.in)
		assert.Equal(t, c.want, got, "%v", c.in)
	}
	for _, bad := range []any{-1, int64(-5), 1.5, math.Pow(2, 64), 1e20, "abc", "", nil, true} {
		_, err := NormalizeAppID(bad)
		assert.Error(t, err, "%v", bad)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.List())

	apps := []App{{AppID: 10, DisplayName: "A"}, {AppID: 20, DisplayName: "B"}}
	r.Set(apps)
	apps[0].DisplayName = "mutated"

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "A", list[0].DisplayName)
	assert.True(t, r.Contains(20))
	assert.False(t, r.Contains(30))

	a, ok := r.Lookup(20)
	require.True(t, ok)
	assert.Equal(t, "B", a.DisplayName)

	assert.Equal(t, map[uint32]bool{10: true, 20: true}, IDs(list))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, FocusChange{AppID: 1, PID: 0}.Validate())
	assert.ErrorIs(t, FocusChange{PID: -1}.Validate(), ErrInvalidEvent)

	assert.ErrorIs(t, KeyEvent{}.Validate(), ErrInvalidEvent)
	k := Key(0)
	assert.NoError(t, k.Validate())
	assert.Equal(t, 0, k.Code())
	assert.Equal(t, -1, KeyEvent{}.Code())

	assert.ErrorIs(t, GameAction{AppID: 1}.Validate(), ErrInvalidEvent)
	assert.NoError(t, GameAction{AppID: 1, Status: "Completed"}.Validate())

	assert.NoError(t, RunningAppsUpdate{Apps: []App{{AppID: 1}, {AppID: 2}}}.Validate())
	assert.ErrorIs(t, RunningAppsUpdate{Apps: []App{{AppID: 1}, {AppID: 1}}}.Validate(), ErrInvalidEvent)
	assert.ErrorIs(t, RunningAppsUpdate{Apps: []App{{}}}.Validate(), ErrInvalidEvent)
}

func TestKeyEventJSON(t *testing.T) {
	var k KeyEvent
	require.NoError(t, json.Unmarshal([]byte(`{"key":0}`), &k))
	assert.NoError(t, k.Validate())
	assert.Equal(t, 0, k.Code())

	k = KeyEvent{}
	require.NoError(t, json.Unmarshal([]byte(`{"controller_index":1}`), &k))
	assert.Error(t, k.Validate())
}
