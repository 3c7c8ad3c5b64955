package cfg

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		wantErr  bool
		validate func(t *testing.T, settings Settings)
	}{
		{
			name:    "defaults when nothing is set",
			envVars: map[string]string{},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings != Defaults() {
					t.Errorf("expected defaults, got %+v", settings)
				}
				if settings.Epochs != 10000 {
					t.Errorf("expected default Epochs 10000, got %d", settings.Epochs)
				}
				if settings.ProgressEvery != 100 {
					t.Errorf("expected default ProgressEvery 100, got %d", settings.ProgressEvery)
				}
				if settings.LearningRate != 0.001 {
					t.Errorf("expected default LearningRate 0.001, got %f", settings.LearningRate)
				}
			},
		},
		{
			name: "custom paths and training settings",
			envVars: map[string]string{
				"HITS_PATH":        "/data/ev_ai_eta.txt",
				"LABELS_PATH":      "/data/true_track_len.txt",
				"DATA_PATH":        "/var/lib/muonfit",
				"MODEL_PATH":       "/models/model.json",
				"HIDDEN_SIZE":      "8",
				"NUM_LAYERS":       "2",
				"LEARNING_RATE":    "0.01",
				"EPOCHS":           "500",
				"PROGRESS_EVERY":   "10",
				"SEED":             "42",
				"MAX_TRACK_LENGTH": "800",
				"DUPLICATE_LABELS": "FAIL",
				"METRICS_FILE":     "/tmp/muonfit.prom",
				"LOG_LEVEL":        "DEBUG",
			},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.HitsPath != "/data/ev_ai_eta.txt" {
					t.Errorf("expected HitsPath override, got %s", settings.HitsPath)
				}
				if settings.LabelsPath != "/data/true_track_len.txt" {
					t.Errorf("expected LabelsPath override, got %s", settings.LabelsPath)
				}
				if settings.DataPath != "/var/lib/muonfit" {
					t.Errorf("expected DataPath override, got %s", settings.DataPath)
				}
				if settings.ModelPath != "/models/model.json" {
					t.Errorf("expected ModelPath override, got %s", settings.ModelPath)
				}
				if settings.HiddenSize != 8 || settings.NumLayers != 2 {
					t.Errorf("expected 8x2 model, got %dx%d", settings.HiddenSize, settings.NumLayers)
				}
				if settings.LearningRate != 0.01 {
					t.Errorf("expected LearningRate 0.01, got %f", settings.LearningRate)
				}
				if settings.Epochs != 500 || settings.ProgressEvery != 10 {
					t.Errorf("expected 500 epochs every 10, got %d every %d", settings.Epochs, settings.ProgressEvery)
				}
				if settings.Seed != 42 {
					t.Errorf("expected Seed 42, got %d", settings.Seed)
				}
				if settings.MaxTrackLength != 800 {
					t.Errorf("expected MaxTrackLength 800, got %f", settings.MaxTrackLength)
				}
				if settings.DuplicateLabels != "fail" {
					t.Errorf("expected DuplicateLabels fail, got %s", settings.DuplicateLabels)
				}
				if settings.MetricsFile != "/tmp/muonfit.prom" {
					t.Errorf("expected MetricsFile override, got %s", settings.MetricsFile)
				}
				if settings.LogLevel != "debug" {
					t.Errorf("expected LogLevel debug, got %s", settings.LogLevel)
				}
			},
		},
		{
			name: "unparsable numbers keep defaults",
			envVars: map[string]string{
				"EPOCHS":        "many",
				"LEARNING_RATE": "fast",
			},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.Epochs != 10000 {
					t.Errorf("expected default Epochs, got %d", settings.Epochs)
				}
				if settings.LearningRate != 0.001 {
					t.Errorf("expected default LearningRate, got %f", settings.LearningRate)
				}
			},
		},
		{
			name:    "invalid hidden size",
			envVars: map[string]string{"HIDDEN_SIZE": "0"},
			wantErr: true,
		},
		{
			name:    "invalid duplicate policy",
			envVars: map[string]string{"DUPLICATE_LABELS": "last"},
			wantErr: true,
		},
		{
			name:    "negative seed",
			envVars: map[string]string{"SEED": "-1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)

			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			settings, err := Load()

			if tt.wantErr && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}

			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	tests := []struct {
		name        string
		yamlContent string
		envVars     map[string]string
		wantErr     bool
		validate    func(t *testing.T, settings Settings)
	}{
		{
			name: "full config",
			yamlContent: `
input:
  hitsPath: "X.txt"
  labelsPath: "Y.txt"
aggregation:
  maxTrackLength: 900
  minTrackLength: 5
  duplicateLabels: "fail"
model:
  hiddenSize: 16
  numLayers: 2
  modelsDir: "runs"
training:
  learningRate: 0.005
  epochs: 2000
  progressEvery: 50
  seed: 7
system:
  dataPath: "store"
  outputDir: "out"
  metricsFile: "muonfit.prom"
  logLevel: "warn"
`,
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.MaxTrackLength != 900 || settings.MinTrackLength != 5 {
					t.Errorf("expected limits [5, 900], got [%f, %f]", settings.MinTrackLength, settings.MaxTrackLength)
				}
				if settings.DuplicateLabels != "fail" {
					t.Errorf("expected DuplicateLabels fail, got %s", settings.DuplicateLabels)
				}
				if settings.HiddenSize != 16 || settings.NumLayers != 2 {
					t.Errorf("expected 16x2 model, got %dx%d", settings.HiddenSize, settings.NumLayers)
				}
				if settings.ModelsDir != "runs" {
					t.Errorf("expected ModelsDir runs, got %s", settings.ModelsDir)
				}
				if settings.Epochs != 2000 || settings.ProgressEvery != 50 || settings.Seed != 7 {
					t.Errorf("unexpected training settings %+v", settings)
				}
				if settings.DataPath != "store" || settings.OutputDir != "out" {
					t.Errorf("unexpected system paths %s %s", settings.DataPath, settings.OutputDir)
				}
				if settings.LogLevel != "warn" {
					t.Errorf("expected LogLevel warn, got %s", settings.LogLevel)
				}
			},
		},
		{
			name: "partial config keeps defaults",
			yamlContent: `
training:
  epochs: 300
`,
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.Epochs != 300 {
					t.Errorf("expected Epochs 300, got %d", settings.Epochs)
				}
				if settings.HiddenSize != 4 {
					t.Errorf("expected default HiddenSize 4, got %d", settings.HiddenSize)
				}
				if settings.LearningRate != 0.001 {
					t.Errorf("expected default LearningRate, got %f", settings.LearningRate)
				}
			},
		},
		{
			name: "environment overrides file",
			yamlContent: `
training:
  epochs: 300
`,
			envVars: map[string]string{"EPOCHS": "20"},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.Epochs != 20 {
					t.Errorf("expected env Epochs 20, got %d", settings.Epochs)
				}
			},
		},
		{
			name:        "invalid yaml",
			yamlContent: "training: [epochs",
			wantErr:     true,
		},
		{
			name: "invalid limits",
			yamlContent: `
aggregation:
  maxTrackLength: 10
  minTrackLength: 20
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)

			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			configPath := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.yamlContent), 0o644); err != nil {
				t.Fatalf("failed to write test config file: %v", err)
			}
			t.Setenv("CONFIG_FILE", configPath)

			settings, err := Load()

			if tt.wantErr && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}

			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	clearTestEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := Load(); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoad_DotEnv(t *testing.T) {
	clearTestEnv(t)

	envFile := filepath.Join(t.TempDir(), "test.env")
	content := "EPOCHS=77\nHIDDEN_SIZE=6\n"
	if err := os.WriteFile(envFile, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	t.Setenv("ENV_FILE", envFile)
	// godotenv only fills variables that are absent from the environment.
	os.Unsetenv("EPOCHS")
	os.Unsetenv("HIDDEN_SIZE")
	t.Setenv("HIDDEN_SIZE", "12")

	settings, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.Epochs != 77 {
		t.Errorf("expected Epochs 77 from env file, got %d", settings.Epochs)
	}
	if settings.HiddenSize != 12 {
		t.Errorf("expected HiddenSize 12 from environment, got %d", settings.HiddenSize)
	}
}

// clearTestEnv clears potentially conflicting environment variables
func clearTestEnv(t *testing.T) {
	envVars := []string{
		"HITS_PATH", "LABELS_PATH", "DATA_PATH", "MODEL_PATH", "MODELS_DIR",
		"OUTPUT_DIR", "HIDDEN_SIZE", "NUM_LAYERS", "LEARNING_RATE", "EPOCHS",
		"PROGRESS_EVERY", "SEED", "MAX_TRACK_LENGTH", "MIN_TRACK_LENGTH",
		"DUPLICATE_LABELS", "METRICS_FILE", "LOG_LEVEL", "CONFIG_FILE",
	}

	for _, env := range envVars {
		t.Setenv(env, "")
	}
	// Point at a file that does not exist so a stray .env is never read.
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
}
