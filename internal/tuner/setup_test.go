package tuner

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/GoSim-25-26J-441/spice-tuner/pkg/config"
)

func TestResolvePath(t *testing.T) {
	base := t.TempDir()
	abs := filepath.Join(base, "elsewhere", "filter.asc")

	tests := []struct {
		name string
		base string
		path string
		want string
	}{
		{"relative joins base", base, "filter.asc", filepath.Join(base, "filter.asc")},
		{"relative subdir", base, "sub/../filter.asc", filepath.Join(base, "filter.asc")},
		{"absolute kept", base, abs, abs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolvePath(tt.base, tt.path))
		})
	}

	got := ResolvePath("", "filter.asc")
	assert.True(t, filepath.IsAbs(got), "got %s", got)
}

func TestReportPath(t *testing.T) {
	base := t.TempDir()

	cfg := &config.Config{Schematic: "filters/lowpass.asc"}
	assert.Equal(t, filepath.Join(base, "filters", "lowpass_report.json"), ReportPath(cfg, base))

	cfg.Report = "out/run.json"
	assert.Equal(t, filepath.Join(base, "out", "run.json"), ReportPath(cfg, base))
}
