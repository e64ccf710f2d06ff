package headless

import (
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name:    "default config",
			config:  DefaultConfig(),
			wantErr: false,
		},
		{
			name:    "negative timeout",
			config:  &Config{Timeout: -time.Second},
			wantErr: true,
		},
		{
			name: "artifacts without output dir",
			config: &Config{
				Artifacts: ArtifactConfig{Enabled: true},
			},
			wantErr: true,
		},
		{
			name: "invalid verbosity",
			config: &Config{
				Logging: LoggingConfig{Verbosity: "loud"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_DefaultVerbosity(t *testing.T) {
	config := &Config{}
	if err := config.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if config.Logging.Verbosity != "normal" {
		t.Errorf("expected default verbosity 'normal', got %q", config.Logging.Verbosity)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"quiet":   LogLevelQuiet,
		"normal":  LogLevelNormal,
		"VERBOSE": LogLevelVerbose,
		"debug":   LogLevelDebug,
		"":        LogLevelNormal,
	}
	for input, want := range tests {
		if got := parseLogLevel(input); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	tests := map[int]string{
		0:       "0",
		999:     "999",
		1000:    "1,000",
		1234567: "1,234,567",
		-4200:   "-4,200",
	}
	for input, want := range tests {
		if got := formatNumber(input); got != want {
			t.Errorf("formatNumber(%d) = %q, want %q", input, got, want)
		}
	}
}
