package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVRenderPrefixesBOMAndQuotesFreeText(t *testing.T) {
	data, err := NewCSVExporter().Render(Dataset{
		Headers: []string{"ID", "Comments"},
		Rows: []map[string]string{
			{"ID": "1", "Comments": `great, "tough" labs`},
		},
	})
	require.NoError(t, err)

	require.True(t, bytes.HasPrefix(data, utf8BOM))
	body := string(bytes.TrimPrefix(data, utf8BOM))
	lines := strings.Split(strings.TrimSpace(body), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "ID,Comments", lines[0])
	assert.Contains(t, lines[1], `"great, ""tough"" labs"`)
}

func TestCSVRenderEmptyCellForMissingHeader(t *testing.T) {
	data, err := NewCSVExporter().Render(Dataset{
		Headers: []string{"ID", "Teacher", "Total"},
		Rows: []map[string]string{
			{"ID": "1", "Total": "17"},
		},
	})
	require.NoError(t, err)

	body := string(bytes.TrimPrefix(data, utf8BOM))
	lines := strings.Split(strings.TrimSpace(body), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "1,,17", lines[1])
}

func TestCSVRenderRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	require.Error(t, err)
}
