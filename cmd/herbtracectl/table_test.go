package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLotTableAlignsColumnsToWidestCell(t *testing.T) {
	table := newLotTable("LOT", "SPECIES")
	table.add("lot-1", "Tulsi")
	table.add("lot-22", "Ashwagandha")

	var out bytes.Buffer
	require.NoError(t, table.writeTo(&out))
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")

	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "LOT")
	assert.Contains(t, lines[3], "Ashwagandha")
	width := lipgloss.Width(lines[0])
	for _, line := range lines[1:] {
		assert.Equal(t, width, lipgloss.Width(line), line)
	}
}

func TestLotTablePadsShortRows(t *testing.T) {
	table := newLotTable("LOT", "SPECIES", "STATUS")
	table.add("lot-1")

	rendered := table.render()
	lines := strings.Split(strings.TrimRight(rendered, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, lipgloss.Width(lines[0]), lipgloss.Width(lines[2]))
}
