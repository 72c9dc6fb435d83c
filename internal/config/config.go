package config

// Experiment is the full description of one subject-level encoding run.
// Field names mirror the experiment file keys.
type Experiment struct {
	Language      string  `mapstructure:"language" validate:"required"`
	Subject       int     `mapstructure:"subject" validate:"gte=1"`
	TR            float64 `mapstructure:"tr" validate:"gt=0"`
	NbRuns        int     `mapstructure:"nb_runs" validate:"gte=1"`
	NbRunsTest    int     `mapstructure:"nb_runs_test" validate:"gte=1"`
	HRF           string  `mapstructure:"hrf" validate:"required"`
	Oversampling  int     `mapstructure:"oversampling" validate:"gte=1"`
	ScalingAxis   int     `mapstructure:"scaling_axis" validate:"oneof=0 1"`
	TemporalShift float64 `mapstructure:"temporal_shifting"`
	WithMean      bool    `mapstructure:"with_mean"`
	WithStd       bool    `mapstructure:"with_std"`
	AddNoise      bool    `mapstructure:"add_noise_to_constant"`
	Seed          int64   `mapstructure:"seed"`

	OffsetPath   string `mapstructure:"offset_path" validate:"required"`
	DurationPath string `mapstructure:"duration_path" validate:"required"`
	InputPath    string `mapstructure:"input" validate:"required"`
	FMRIDataPath string `mapstructure:"fmri_data"`
	OutputPath   string `mapstructure:"output" validate:"required"`

	Models []Model `mapstructure:"models" validate:"min=1,dive"`
}

// Model configures one representation model: where its per-run files live,
// which columns to retrieve, how to scale and compress them, and which
// event timing labels drive its regressors.
type Model struct {
	Name          string   `mapstructure:"model_name" validate:"required"`
	InputTemplate string   `mapstructure:"input_template" validate:"required"`
	Columns       []string `mapstructure:"columns_to_retrieve" validate:"min=1,dive,required"`
	OffsetType    string   `mapstructure:"offset_type" validate:"required"`
	DurationType  string   `mapstructure:"duration_type" validate:"required"`
	ScalingType   string   `mapstructure:"scaling_type"`
	Centering     bool     `mapstructure:"centering"`
	NormOrder     float64  `mapstructure:"order"`
	Compression   string   `mapstructure:"data_compression"`
	NComponents   int      `mapstructure:"ncomponents" validate:"gte=0"`
}
