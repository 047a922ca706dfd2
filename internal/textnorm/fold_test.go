package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Instalacao Compensacao Referencia", Fold("Instalação Compensação Referência"))
	assert.Equal(t, "Nº 123", Fold("Nº 123"))
}

func TestKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "CASA DE ORACAO", Key("  Casa de Oração "))
}

func TestContainsAny(t *testing.T) {
	t.Parallel()
	assert.True(t, ContainsAny("Adm – Mauá", "ADM", "SEDE"))
	assert.True(t, ContainsAny("Sede Regional", "ADM", "SEDE"))
	assert.False(t, ContainsAny("BR 21-0270 - CENTRO", "ADM", "SEDE"))
	assert.False(t, ContainsAny("anything", ""))
}

func TestHasWord(t *testing.T) {
	t.Parallel()
	assert.True(t, HasWord("Adm – Mauá", "ADM", "SEDE"))
	assert.True(t, HasWord("ADM–MAUA", "adm"))
	assert.True(t, HasWord("Sede Regional", "ADM", "SEDE"))
	assert.False(t, HasWord("VILA SEDENTARIA", "ADM", "SEDE"))
	assert.False(t, HasWord("Admiral Loja", "ADM"))
	assert.False(t, HasWord("anything", ""))
}
