package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/encodelab/fmripipe/internal/compress"
	"github.com/encodelab/fmripipe/internal/hrf"
	"github.com/encodelab/fmripipe/internal/transform"
)

// envPrefix namespaces the environment variables that may override
// experiment file keys, FMRIPIPE_SUBJECT for example.
const envPrefix = "FMRIPIPE"

// Load reads an experiment file, applies defaults and environment
// overrides, and validates the result. Validation is eager: every name
// that later resolves against a closed registry (language, hrf, scaling,
// compression) is checked here, before any data is touched.
func Load(path string) (*Experiment, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{
		"language", "subject", "input", "output",
		"fmri_data", "offset_path", "duration_path",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding environment variable for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading experiment file %s: %w", path, err)
	}

	var e Experiment
	if err := v.Unmarshal(&e); err != nil {
		return nil, fmt.Errorf("decoding experiment file %s: %w", path, err)
	}
	if err := validator.New().Struct(&e); err != nil {
		return nil, fmt.Errorf("invalid experiment file %s: %w", path, err)
	}
	if err := e.check(); err != nil {
		return nil, fmt.Errorf("invalid experiment file %s: %w", path, err)
	}
	return &e, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("hrf", "spm")
	v.SetDefault("oversampling", 10)
	v.SetDefault("nb_runs", 9)
	v.SetDefault("nb_runs_test", 1)
	v.SetDefault("scaling_axis", 1)
	v.SetDefault("with_mean", true)
	v.SetDefault("with_std", true)
	v.SetDefault("add_noise_to_constant", true)
}

// check enforces the semantic rules the struct tags cannot express.
func (e *Experiment) check() error {
	table, err := NScans(e.Language)
	if err != nil {
		return err
	}
	if e.NbRuns > len(table) {
		return fmt.Errorf("nb_runs %d exceeds the %d runs of the %s acquisition",
			e.NbRuns, len(table), e.Language)
	}
	if e.NbRunsTest >= e.NbRuns {
		return fmt.Errorf("nb_runs_test %d must stay below nb_runs %d", e.NbRunsTest, e.NbRuns)
	}
	if _, err := hrf.ParseModel(e.HRF); err != nil {
		return err
	}
	seen := make(map[string]bool, len(e.Models))
	for _, m := range e.Models {
		if seen[m.Name] {
			return fmt.Errorf("model %q is declared twice", m.Name)
		}
		seen[m.Name] = true
		if _, err := transform.ParseScalingKind(m.ScalingType); err != nil {
			return fmt.Errorf("model %q: %w", m.Name, err)
		}
		kind, err := compress.ParseKind(m.Compression)
		if err != nil {
			return fmt.Errorf("model %q: %w", m.Name, err)
		}
		if kind == compress.PCA {
			if m.NComponents < 1 {
				return fmt.Errorf("model %q compresses with pca but sets no ncomponents", m.Name)
			}
			if m.NComponents > len(m.Columns) {
				return fmt.Errorf("model %q keeps %d components of %d columns",
					m.Name, m.NComponents, len(m.Columns))
			}
		}
	}
	return nil
}
