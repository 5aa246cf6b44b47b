package amplitude

import (
	"errors"
	"math"
	"testing"

	"github.com/GoSim-25-26J-441/amplitude-core/pkg/config"
)

func TestBuildFromYAML(t *testing.T) {
	spec, err := config.ParseModelYAMLString(`
amplitudes:
  - {name: s, kind: scalar}
  - {name: z, kind: cscalar}
  - {name: one, kind: constant, re: 1}
sums:
  - - product: [s, {imag: z}]
    - one
  - - z
parameters:
  fixed:
    - {amplitude: z, parameter: real, value: 0}
  bounds:
    - {amplitude: s, parameter: value, lower: 0, upper: 10}
`)
	if err != nil {
		t.Fatal(err)
	}
	m, err := Build(spec, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := m.FreeParameterNames(); len(got) != 2 || got[0] != "s.value" || got[1] != "z.imag" {
		t.Fatalf("free names = %v", got)
	}
	if b := m.Bounds()[0]; b.Lower != 0 || b.Upper != 10 {
		t.Errorf("bounds = %+v", b)
	}
	// |2*3 + 1|^2 + |3i|^2
	if got := evaluate(t, m, testDataset(1), 2, 3)[0]; math.Abs(got-58) > 1e-12 {
		t.Errorf("intensity = %v, want 58", got)
	}
}

func TestBuildCustomKind(t *testing.T) {
	reg := DefaultRegistry()
	reg["counting"] = func(config.AmplitudeSpec) (Node, error) { return &countingNode{}, nil }

	spec := &config.ModelSpec{
		Amplitudes: []config.AmplitudeSpec{{Name: "c", Kind: "counting"}},
		Sums:       [][]config.ExprSpec{{{Amp: "c"}}},
	}
	m, err := Build(spec, reg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if m.NFree() != 1 {
		t.Errorf("NFree = %d, want 1", m.NFree())
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		spec config.ModelSpec
		want error
	}{
		{
			name: "unknown kind",
			spec: config.ModelSpec{
				Amplitudes: []config.AmplitudeSpec{{Name: "a", Kind: "breit_wigner"}},
				Sums:       [][]config.ExprSpec{{{Amp: "a"}}},
			},
			want: ErrUnknownKind,
		},
		{
			name: "unknown reference",
			spec: config.ModelSpec{
				Amplitudes: []config.AmplitudeSpec{{Name: "a", Kind: "scalar"}},
				Sums:       [][]config.ExprSpec{{{Amp: "b"}}},
			},
			want: ErrAmplitudeNotFound,
		},
		{
			name: "plan names missing parameter",
			spec: config.ModelSpec{
				Amplitudes: []config.AmplitudeSpec{{Name: "a", Kind: "scalar"}},
				Sums:       [][]config.ExprSpec{{{Amp: "a"}}},
				Parameters: &config.ParameterPlan{
					Fixed: []config.ParamValue{{ParamRef: config.ParamRef{Amplitude: "a", Parameter: "mag"}}},
				},
			},
			want: ErrParameterNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(&tt.spec, nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	_, err := Build(&config.ModelSpec{
		Amplitudes: []config.AmplitudeSpec{{Name: "h", Kind: "piecewise_m"}},
		Sums:       [][]config.ExprSpec{{{Amp: "h"}}},
	}, nil)
	if err == nil {
		t.Error("expected piecewise_m without bins to fail")
	}
}
