//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelImportListInspect(t *testing.T) {
	cfg = testConfig(t)
	ctx := context.Background()
	t.Cleanup(func() { importName, importVersion, listName = "", "", "" })

	var out bytes.Buffer
	modelImportCmd.SetOut(&out)
	modelImportCmd.SetContext(ctx)
	require.NoError(t, modelImportCmd.RunE(modelImportCmd, []string{airArtifact}))
	assert.Contains(t, out.String(), "stored air-quality@2024.06")

	importVersion = "2024.07"
	out.Reset()
	require.NoError(t, modelImportCmd.RunE(modelImportCmd, []string{airArtifact}))
	assert.Contains(t, out.String(), "stored air-quality@2024.07")

	// Versions are immutable.
	err := modelImportCmd.RunE(modelImportCmd, []string{airArtifact})
	assert.ErrorContains(t, err, "store artifact")

	out.Reset()
	modelListCmd.SetOut(&out)
	modelListCmd.SetContext(ctx)
	require.NoError(t, modelListCmd.RunE(modelListCmd, nil))
	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[1]), "2024.07")
	assert.Contains(t, string(lines[2]), "2024.06")

	out.Reset()
	modelInspectCmd.SetOut(&out)
	modelInspectCmd.SetContext(ctx)
	require.NoError(t, modelInspectCmd.RunE(modelInspectCmd, []string{"store://air-quality"}))

	var info struct {
		Name         string   `json:"name"`
		Version      string   `json:"version"`
		FeatureNames []string `json:"feature_names"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, "air-quality", info.Name)
	assert.Equal(t, "2024.07", info.Version)
	assert.Len(t, info.FeatureNames, 9)

	t.Cleanup(func() {
		modelImportCmd.SetOut(nil)
		modelListCmd.SetOut(nil)
		modelInspectCmd.SetOut(nil)
	})
}

func TestModelImport_InvalidArtifact(t *testing.T) {
	cfg = testConfig(t)
	modelImportCmd.SetContext(context.Background())

	err := modelImportCmd.RunE(modelImportCmd, []string{"root.go"})
	require.Error(t, err)
}

func TestShortSum(t *testing.T) {
	assert.Equal(t, "abc", shortSum("abc"))
	assert.Equal(t, "0123456789ab", shortSum("0123456789abcdef"))
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
}
