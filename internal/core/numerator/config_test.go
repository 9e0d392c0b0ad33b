package numerator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigFormatAndKey(t *testing.T) {
	at := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		cfg    Config
		n      int64
		want   string
		wantKy string
	}{
		{"default", DefaultConfig("MV"), 42, "MV-2026-00042", "MV_2026"},
		{"monthly", Config{Prefix: "MV", IncludeYear: true, PadWidth: 3, ResetPeriod: ResetMonthly}, 7, "MV-2026-007", "MV_2026_03"},
		{"no year", Config{Prefix: "RS", ResetPeriod: ResetNever}, 123456, "RS-123456", "RS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.Format(at, tt.n))
			assert.Equal(t, tt.wantKy, tt.cfg.Key(at))
		})
	}
}

func TestParse(t *testing.T) {
	tests := map[string]int64{
		"MV-2026-00042": 42,
		"RS-17":         17,
		"MV-2026-":      -1,
		"garbage":       -1,
		"MV-2026-x1":    -1,
	}
	for in, want := range tests {
		assert.Equal(t, want, Parse(in), in)
	}
}
