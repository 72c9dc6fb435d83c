package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validExperiment = `
language: english
subject: 57
tr: 2.0
offset_path: /data/offsets
duration_path: /data/durations
input: /data/representations
output: /data/derivatives
models:
  - model_name: glove
    input_template: emb
    columns_to_retrieve: [c0, c1]
    offset_type: word
    duration_type: word
`

func writeExperiment(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "experiment.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	e, err := Load(writeExperiment(t, validExperiment))
	require.NoError(t, err)

	assert.Equal(t, "english", e.Language)
	assert.Equal(t, 57, e.Subject)
	assert.Equal(t, "spm", e.HRF)
	assert.Equal(t, 10, e.Oversampling)
	assert.Equal(t, 9, e.NbRuns)
	assert.Equal(t, 1, e.NbRunsTest)
	assert.Equal(t, 1, e.ScalingAxis)
	assert.True(t, e.WithMean)
	assert.True(t, e.WithStd)
	assert.True(t, e.AddNoise)
	require.Len(t, e.Models, 1)
	assert.Equal(t, []string{"c0", "c1"}, e.Models[0].Columns)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("FMRIPIPE_SUBJECT", "103")
	e, err := Load(writeExperiment(t, validExperiment))
	require.NoError(t, err)
	assert.Equal(t, 103, e.Subject)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	assert.Error(t, err)
}

func TestLoad_Rejections(t *testing.T) {
	cases := map[string]string{
		"unknown language": `
language: klingon
subject: 1
tr: 2.0
offset_path: /o
duration_path: /d
input: /i
output: /out
models:
  - {model_name: m, input_template: t, columns_to_retrieve: [a], offset_type: w, duration_type: w}
`,
		"unknown hrf": `
language: english
subject: 57
tr: 2.0
hrf: boxcar
offset_path: /o
duration_path: /d
input: /i
output: /out
models:
  - {model_name: m, input_template: t, columns_to_retrieve: [a], offset_type: w, duration_type: w}
`,
		"unknown scaling": `
language: english
subject: 57
tr: 2.0
offset_path: /o
duration_path: /d
input: /i
output: /out
models:
  - {model_name: m, input_template: t, columns_to_retrieve: [a], offset_type: w, duration_type: w, scaling_type: whiten}
`,
		"pca without ncomponents": `
language: english
subject: 57
tr: 2.0
offset_path: /o
duration_path: /d
input: /i
output: /out
models:
  - {model_name: m, input_template: t, columns_to_retrieve: [a, b], offset_type: w, duration_type: w, data_compression: pca}
`,
		"test folds swallow all runs": `
language: english
subject: 57
tr: 2.0
nb_runs: 3
nb_runs_test: 3
offset_path: /o
duration_path: /d
input: /i
output: /out
models:
  - {model_name: m, input_template: t, columns_to_retrieve: [a], offset_type: w, duration_type: w}
`,
		"duplicate model names": `
language: english
subject: 57
tr: 2.0
offset_path: /o
duration_path: /d
input: /i
output: /out
models:
  - {model_name: m, input_template: t, columns_to_retrieve: [a], offset_type: w, duration_type: w}
  - {model_name: m, input_template: t2, columns_to_retrieve: [b], offset_type: w, duration_type: w}
`,
		"missing tr": `
language: english
subject: 57
offset_path: /o
duration_path: /d
input: /i
output: /out
models:
  - {model_name: m, input_template: t, columns_to_retrieve: [a], offset_type: w, duration_type: w}
`,
		"no models": `
language: english
subject: 57
tr: 2.0
offset_path: /o
duration_path: /d
input: /i
output: /out
models: []
`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeExperiment(t, content))
			assert.Error(t, err)
		})
	}
}
