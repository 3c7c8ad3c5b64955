package cfg

import (
	"strings"
	"testing"
)

// createValidSettings creates a valid Settings struct for testing
func createValidSettings() *Settings {
	s := Defaults()
	return &s
}

func TestValidateSettings_ValidConfig(t *testing.T) {
	settings := createValidSettings()

	err := validateSettings(settings)
	if err != nil {
		t.Errorf("Expected valid config to pass, got error: %v", err)
	}
}

func TestValidateSettings_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Settings)
		wantMsg string
	}{
		{"empty data path", func(s *Settings) { s.DataPath = "" }, "data path"},
		{"empty models dir", func(s *Settings) { s.ModelsDir = "" }, "models directory"},
		{"empty output dir", func(s *Settings) { s.OutputDir = "" }, "output directory"},
		{"zero hidden size", func(s *Settings) { s.HiddenSize = 0 }, "hidden size"},
		{"huge hidden size", func(s *Settings) { s.HiddenSize = 4096 }, "hidden size"},
		{"zero layers", func(s *Settings) { s.NumLayers = 0 }, "number of layers"},
		{"zero learning rate", func(s *Settings) { s.LearningRate = 0 }, "learning rate"},
		{"learning rate above one", func(s *Settings) { s.LearningRate = 2 }, "learning rate"},
		{"zero epochs", func(s *Settings) { s.Epochs = 0 }, "epochs"},
		{"zero progress interval", func(s *Settings) { s.ProgressEvery = 0 }, "progress interval"},
		{"negative seed", func(s *Settings) { s.Seed = -5 }, "seed"},
		{"negative min length", func(s *Settings) { s.MinTrackLength = -1 }, "min track length"},
		{"max below min", func(s *Settings) { s.MinTrackLength = 10; s.MaxTrackLength = 10 }, "max track length"},
		{"unknown duplicate policy", func(s *Settings) { s.DuplicateLabels = "merge" }, "duplicate label policy"},
		{"unknown log level", func(s *Settings) { s.LogLevel = "trace" }, "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := createValidSettings()
			tt.mutate(settings)

			err := validateSettings(settings)
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Expected error containing %q, got %v", tt.wantMsg, err)
			}
		})
	}
}

func TestValidateSettings_Boundaries(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Settings)
	}{
		{"single hidden unit", func(s *Settings) { s.HiddenSize = 1 }},
		{"learning rate one", func(s *Settings) { s.LearningRate = 1 }},
		{"single epoch", func(s *Settings) { s.Epochs = 1 }},
		{"fail policy", func(s *Settings) { s.DuplicateLabels = "fail" }},
		{"error log level", func(s *Settings) { s.LogLevel = "error" }},
		{"seed zero", func(s *Settings) { s.Seed = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := createValidSettings()
			tt.mutate(settings)

			if err := validateSettings(settings); err != nil {
				t.Errorf("Expected valid config, got error: %v", err)
			}
		})
	}
}
