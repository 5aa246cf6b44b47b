package config

// Config represents the process configuration of the fit daemon
type Config struct {
	LogLevel  string      `yaml:"log_level"`
	LogFormat string      `yaml:"log_format"`
	Workers   int         `yaml:"workers"`
	GRPCAddr  string      `yaml:"grpc_addr"`
	HTTPAddr  string      `yaml:"http_addr"`
	Store     StoreConfig `yaml:"store"`
	Fit       FitConfig   `yaml:"fit"`
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path,omitempty"`
}

// FitConfig holds defaults for minimizations started by the daemon
type FitConfig struct {
	Method         string `yaml:"method"`
	MaxEvaluations int    `yaml:"max_evaluations"`
}

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Workers:   0,
		GRPCAddr:  ":50051",
		HTTPAddr:  ":8080",
		Store:     StoreConfig{Driver: "memory"},
		Fit: FitConfig{
			Method:         "nelder-mead",
			MaxEvaluations: 5000,
		},
	}
}

// ModelSpec describes a model: its amplitudes and its coherent sums
type ModelSpec struct {
	Amplitudes []AmplitudeSpec `yaml:"amplitudes" json:"amplitudes"`
	Sums       [][]ExprSpec    `yaml:"sums" json:"sums"`
	Parameters *ParameterPlan  `yaml:"parameters,omitempty" json:"parameters,omitempty"`
}

// AmplitudeSpec declares one named amplitude and the node kind behind it
type AmplitudeSpec struct {
	Name      string            `yaml:"name" json:"name"`
	Kind      string            `yaml:"kind" json:"kind"`
	Bins      int               `yaml:"bins,omitempty" json:"bins,omitempty"`
	Range     []float64         `yaml:"range,omitempty" json:"range,omitempty"`
	Daughters []int             `yaml:"daughters,omitempty" json:"daughters,omitempty"`
	Re        float64           `yaml:"re,omitempty" json:"re,omitempty"`
	Im        float64           `yaml:"im,omitempty" json:"im,omitempty"`
	Options   map[string]string `yaml:"options,omitempty" json:"options,omitempty"`
}

// ExprSpec is exactly one of an amplitude reference, a projection, a product or a sum.
// A bare YAML string is shorthand for an amplitude reference.
type ExprSpec struct {
	Amp     string     `yaml:"amp,omitempty" json:"amp,omitempty"`
	Real    *ExprSpec  `yaml:"real,omitempty" json:"real,omitempty"`
	Imag    *ExprSpec  `yaml:"imag,omitempty" json:"imag,omitempty"`
	Product []ExprSpec `yaml:"product,omitempty" json:"product,omitempty"`
	Sum     []ExprSpec `yaml:"sum,omitempty" json:"sum,omitempty"`
}

// ParamRef names one parameter of one amplitude
type ParamRef struct {
	Amplitude string `yaml:"amplitude" json:"amplitude"`
	Parameter string `yaml:"parameter" json:"parameter"`
}

// ParamValue pairs a parameter with a value
type ParamValue struct {
	ParamRef `yaml:",inline"`
	Value    float64 `yaml:"value" json:"value"`
}

// ParamBounds sets bounds on a parameter; a missing end is unbounded
type ParamBounds struct {
	ParamRef `yaml:",inline"`
	Lower    *float64 `yaml:"lower,omitempty" json:"lower,omitempty"`
	Upper    *float64 `yaml:"upper,omitempty" json:"upper,omitempty"`
}

// Constraint ties two parameters to one shared value
type Constraint struct {
	A ParamRef `yaml:"a" json:"a"`
	B ParamRef `yaml:"b" json:"b"`
}

// ParameterPlan is a batch of parameter and activation edits
type ParameterPlan struct {
	Constraints []Constraint  `yaml:"constraints,omitempty" json:"constraints,omitempty"`
	Fixed       []ParamValue  `yaml:"fixed,omitempty" json:"fixed,omitempty"`
	Free        []ParamValue  `yaml:"free,omitempty" json:"free,omitempty"`
	Bounds      []ParamBounds `yaml:"bounds,omitempty" json:"bounds,omitempty"`
	Initial     []ParamValue  `yaml:"initial,omitempty" json:"initial,omitempty"`
	Activate    []string      `yaml:"activate,omitempty" json:"activate,omitempty"`
	Isolate     []string      `yaml:"isolate,omitempty" json:"isolate,omitempty"`
	Deactivate  []string      `yaml:"deactivate,omitempty" json:"deactivate,omitempty"`
}
