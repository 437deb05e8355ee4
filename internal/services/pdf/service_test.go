package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestConvertMarkdownToPDF(t *testing.T) {
	service := NewService("Liceo - Reporte", arbor.NewLogger())

	tests := []struct {
		name      string
		markdown  string
		wantPages int
	}{
		{
			name:      "empty",
			markdown:  "",
			wantPages: 1,
		},
		{
			name:      "paragraphs and lists",
			markdown:  "# Reporte\n\nTexto con **negrita** y *cursiva*.\n\n- Ítem uno\n- Ítem dos",
			wantPages: 1,
		},
		{
			name:      "each level-1 heading after the first starts a page",
			markdown:  "# Resumen\n\nuno\n\n## Detalle\n\ndos\n\n# Mensual\n\ntres\n\n# Ranking\n\ncuatro",
			wantPages: 3,
		},
		{
			name: "table with accents",
			markdown: "# Activos\n\n| Nombre | Curso | Estado |\n|---|---|---|\n" +
				"| Ana Pérez | 3A | En búsqueda |\n| José Muñoz | 1B | En espera |\n\n---\n\nFin.",
			wantPages: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := service.ConvertMarkdownToPDF(tt.markdown, "Reporte de Retiros")
			require.NoError(t, err)
			require.Greater(t, len(data), 4)
			assert.Equal(t, "%PDF", string(data[:4]))

			pages, err := PageCount(data)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPages, pages)
		})
	}
}

func TestPageCount_RejectsGarbage(t *testing.T) {
	_, err := PageCount([]byte("not a pdf"))
	assert.Error(t, err)
}
