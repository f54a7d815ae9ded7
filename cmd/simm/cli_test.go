package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/simm/internal/modules/simm"
	testhelpers "github.com/aristath/simm/internal/testing"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeGradient(t *testing.T, paths int) string {
	t.Helper()
	doc := simm.NewGradientDocument(time.Date(2024, 3, 28, 0, 0, 0, 0, time.UTC), testhelpers.NewGradientFixture(paths))
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "gradient.json")
	require.NoError(t, os.WriteFile(path, raw, 0644))
	return path
}

func TestMargin_JSON(t *testing.T) {
	out, err := run(t, "", "margin", "--gradient", writeGradient(t, 3), "--shards", "2")
	require.NoError(t, err)

	var body struct {
		ParamsVersion string `json:"params_version"`
		Result        struct {
			Paths int `json:"paths"`
		} `json:"result"`
		Summary struct {
			Mean float64 `json:"mean"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.NotEmpty(t, body.ParamsVersion)
	assert.Equal(t, 3, body.Result.Paths)
	assert.Positive(t, body.Summary.Mean)
}

func TestMargin_TableFromStdin(t *testing.T) {
	raw, err := os.ReadFile(writeGradient(t, 1))
	require.NoError(t, err)

	out, err := run(t, string(raw), "margin", "-g", "-", "-o", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "TOTAL")
	assert.Contains(t, out, "RatesFX")
}

func TestMargin_Errors(t *testing.T) {
	_, err := run(t, "", "margin")
	assert.Error(t, err, "gradient flag is required")

	_, err = run(t, "", "margin", "-g", filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)

	_, err = run(t, "", "margin", "-g", writeGradient(t, 1), "-o", "xml")
	assert.Error(t, err)
}

func TestParamsValidate(t *testing.T) {
	out, err := run(t, "", "params", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "embedded: valid")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("version: 1\nunknown: true\n"), 0644))
	_, err = run(t, "", "params", "validate", "--params", bad)
	assert.Error(t, err)
}
