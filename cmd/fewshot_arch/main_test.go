package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArchitectures(t *testing.T) {
	archs, err := parseArchitectures("all")
	require.NoError(t, err)
	require.Len(t, archs, len(architectureNames))
	for ii, arch := range archs {
		assert.Equal(t, architectureNames[ii], arch.name)
	}

	archs, err = parseArchitectures("maml, semhash-autoencoder")
	require.NoError(t, err)
	require.Len(t, archs, 2)
	assert.Equal(t, "maml", archs[0].name)
	assert.Equal(t, "semhash-autoencoder", archs[1].name)

	_, err = parseArchitectures("maml,resnet")
	require.ErrorContains(t, err, "resnet")
}

func TestPlainTableRender(t *testing.T) {
	table := newPlainTable(true)
	table.Headers("Output", "Shape")
	table.Row("logits", "(Float32)[4 5]")
	rendered := table.Render()
	assert.True(t, strings.Contains(rendered, "logits"))
	assert.True(t, strings.Contains(rendered, "(Float32)[4 5]"))
}
