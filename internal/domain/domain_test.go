package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTitleFrom(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short", "Hola", "Hola"},
		{"exact limit", strings.Repeat("a", TitleLimit), strings.Repeat("a", TitleLimit)},
		{"truncated", strings.Repeat("b", TitleLimit+1), strings.Repeat("b", TitleLimit) + "..."},
		{"multibyte runes", strings.Repeat("ñ", TitleLimit+5), strings.Repeat("ñ", TitleLimit) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TitleFrom(tt.in))
		})
	}
}

func TestCanvasKind(t *testing.T) {
	assert.Equal(t, CanvasBacklog, ParseCanvasKind(" Backlog "))
	assert.Equal(t, CanvasArchitecture, ParseCanvasKind("architecture"))
	assert.Equal(t, CanvasUnknown, ParseCanvasKind("burndown"))
	assert.False(t, CanvasUnknown.Known())
	assert.Equal(t, "unknown", CanvasUnknown.String())

	var c Canvas
	require.NoError(t, json.Unmarshal([]byte(`{"type":"burndown","title":"X","data":[{"a":1}]}`), &c))
	assert.Equal(t, CanvasUnknown, c.Kind)
	assert.Len(t, c.Data, 1)

	out, err := json.Marshal(Canvas{Kind: CanvasSprints, Title: "S"})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"type":"sprints"`)
}

func TestPresenceOf(t *testing.T) {
	assert.Equal(t, PresencePresent, PresenceOf(true))
	assert.Equal(t, PresenceAbsent, PresenceOf(false))
}

func TestUserIdleFor(t *testing.T) {
	now := time.Now()
	u := &User{LastSeenAt: now.Add(-time.Minute)}
	assert.Equal(t, time.Minute, u.IdleFor(now))

	u.LastSeenAt = now.Add(time.Minute)
	assert.Zero(t, u.IdleFor(now))
}

func TestParseEditSection(t *testing.T) {
	tests := map[string]EditSection{
		"structure":  EditSectionStructure,
		" Database ": EditSectionDatabase,
		"endpoints":  EditSectionEndpoints,
		"modules":    EditSectionModules,
		"":           EditSectionNone,
		"payments":   EditSectionNone,
		"<script>":   EditSectionNone,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseEditSection(in), in)
	}
}
