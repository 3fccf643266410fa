package form

import (
	"testing"

	"github.com/ashureev/scrum-ai/internal/directive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFields() []directive.FieldDefinition {
	return []directive.FieldDefinition{
		{ID: "name", Label: "Nombre", Kind: directive.FieldFreeText},
		{ID: "method", Label: "Método HTTP", Kind: directive.FieldSingleSelect, Options: []string{"GET", "POST"}},
		{ID: "features", Label: "Funcionalidades", Kind: directive.FieldMultiSelect, Options: []string{"A", "B", "C"}},
	}
}

func TestToggleMultiValue(t *testing.T) {
	s := New("msg-1", testFields())

	require.NoError(t, s.ToggleMultiValue("features", "A"))
	require.NoError(t, s.ToggleMultiValue("features", "B"))
	require.NoError(t, s.ToggleMultiValue("features", "A"))

	assert.Equal(t, []string{"B"}, s.Selected("features"))
	assert.Equal(t, "B", s.Value("features"))
}

func TestToggleMultiValuePreservesOrder(t *testing.T) {
	s := New("msg-1", testFields())
	for _, opt := range []string{"C", "A", "B", "A"} {
		require.NoError(t, s.ToggleMultiValue("features", opt))
	}
	assert.Equal(t, []string{"C", "B"}, s.Selected("features"))
	assert.Equal(t, "C, B", s.Value("features"))
}

func TestToggleMultiValueRejectsOtherKinds(t *testing.T) {
	s := New("msg-1", testFields())
	assert.ErrorIs(t, s.ToggleMultiValue("method", "GET"), ErrNotMultiSelect)
	assert.ErrorIs(t, s.ToggleMultiValue("missing", "x"), ErrUnknownField)
}

func TestSetValue(t *testing.T) {
	s := New("msg-1", testFields())

	require.NoError(t, s.SetValue("name", "Pagos"))
	require.NoError(t, s.SetValue("name", "Pagos"))
	assert.Equal(t, "Pagos", s.Value("name"), "free text never toggles")

	require.NoError(t, s.SetValue("method", "GET"))
	assert.Equal(t, "GET", s.Value("method"))
	require.NoError(t, s.SetValue("method", "POST"))
	assert.Equal(t, "POST", s.Value("method"))
	require.NoError(t, s.SetValue("method", "POST"))
	assert.Empty(t, s.Value("method"), "re-selecting clears a single select")

	assert.ErrorIs(t, s.SetValue("features", "A"), ErrIsMultiSelect)
	assert.ErrorIs(t, s.SetValue("nope", "x"), ErrUnknownField)
}

func TestProgress(t *testing.T) {
	s := New("msg-1", testFields())
	assert.Equal(t, 0.0, s.Progress())

	require.NoError(t, s.SetValue("name", "Pagos"))
	assert.InDelta(t, 1.0/3.0, s.Progress(), 1e-9)

	require.NoError(t, s.ToggleMultiValue("features", "A"))
	require.NoError(t, s.ToggleMultiValue("features", "A"))
	assert.InDelta(t, 1.0/3.0, s.Progress(), 1e-9, "emptied multi select does not count")

	assert.Equal(t, 0.0, New("msg-2", nil).Progress())
}

func TestSubmit(t *testing.T) {
	s := New("msg-1", testFields())

	_, ok := s.Submit()
	assert.False(t, ok, "submit disabled while every field is empty")
	assert.False(t, s.CanSubmit())

	require.NoError(t, s.ToggleMultiValue("features", "C"))
	require.NoError(t, s.ToggleMultiValue("features", "A"))
	require.NoError(t, s.SetValue("name", "Pagos"))

	msg, ok := s.Submit()
	require.True(t, ok)
	assert.Equal(t, "Nombre: Pagos\nFuncionalidades: C, A", msg)
}

func TestValuesAndFieldsAreCopies(t *testing.T) {
	fields := testFields()
	s := New("msg-1", fields)
	fields[0].Label = "changed"

	assert.Equal(t, "Nombre", s.Fields()[0].Label)

	require.NoError(t, s.SetValue("name", "x"))
	v := s.Values()
	v["name"] = "y"
	assert.Equal(t, "x", s.Value("name"))
}
