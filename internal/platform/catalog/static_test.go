package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_SemLista_UsaPaisesPadrao(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)

	assert.True(t, c.Exists("Brazil"))
	assert.True(t, c.Exists("France"))
	assert.Len(t, c.List(), len(DefaultCountries))
}

func TestNew_ListaCustomizada_OrdenaERemoveDuplicados(t *testing.T) {
	c, err := New([]string{" Peru ", "Chile", "Peru", ""})
	require.NoError(t, err)

	assert.Equal(t, []string{"Chile", "Peru"}, c.List())
	assert.False(t, c.Exists("Brazil"))
}

func TestNew_RecusaNomeDaSalaGlobal(t *testing.T) {
	_, err := New([]string{"France", "Global"})
	require.Error(t, err)
}

func TestNew_ListaSoComBrancos_RetornaErro(t *testing.T) {
	_, err := New([]string{" ", ""})
	require.Error(t, err)
}

func TestExists_DiferenciaMaiusculas(t *testing.T) {
	c, err := New([]string{"France"})
	require.NoError(t, err)

	assert.False(t, c.Exists("france"))
	assert.False(t, c.Exists(""))
}

func TestList_RetornaCopia(t *testing.T) {
	c, err := New([]string{"France", "Japan"})
	require.NoError(t, err)

	lista := c.List()
	lista[0] = "alterado"

	assert.Equal(t, []string{"France", "Japan"}, c.List())
}
