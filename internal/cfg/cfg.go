package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Settings is the merged configuration shared by the prepare, train and
// fit binaries.
type Settings struct {
	HitsPath        string
	LabelsPath      string
	DataPath        string
	ModelPath       string
	ModelsDir       string
	OutputDir       string
	HiddenSize      int
	NumLayers       int
	LearningRate    float64
	Epochs          int
	ProgressEvery   int
	Seed            int64
	MaxTrackLength  float64
	MinTrackLength  float64
	DuplicateLabels string
	MetricsFile     string
	LogLevel        string
}

type ConfigFile struct {
	Input struct {
		HitsPath   string `yaml:"hitsPath"`
		LabelsPath string `yaml:"labelsPath"`
	} `yaml:"input"`

	Aggregation struct {
		MaxTrackLength  float64 `yaml:"maxTrackLength"`
		MinTrackLength  float64 `yaml:"minTrackLength"`
		DuplicateLabels string  `yaml:"duplicateLabels"`
	} `yaml:"aggregation"`

	Model struct {
		HiddenSize int    `yaml:"hiddenSize"`
		NumLayers  int    `yaml:"numLayers"`
		ModelPath  string `yaml:"modelPath"`
		ModelsDir  string `yaml:"modelsDir"`
	} `yaml:"model"`

	Training struct {
		LearningRate  float64 `yaml:"learningRate"`
		Epochs        int     `yaml:"epochs"`
		ProgressEvery int     `yaml:"progressEvery"`
		Seed          int64   `yaml:"seed"`
	} `yaml:"training"`

	System struct {
		DataPath    string `yaml:"dataPath"`
		OutputDir   string `yaml:"outputDir"`
		MetricsFile string `yaml:"metricsFile"`
		LogLevel    string `yaml:"logLevel"`
	} `yaml:"system"`
}

// Defaults returns the settings used when nothing is configured.
func Defaults() Settings {
	return Settings{
		HitsPath:        "X.txt",
		LabelsPath:      "Y.txt",
		DataPath:        "data",
		ModelsDir:       "models",
		OutputDir:       ".",
		HiddenSize:      4,
		NumLayers:       1,
		LearningRate:    0.001,
		Epochs:          10000,
		ProgressEvery:   100,
		MaxTrackLength:  1000,
		MinTrackLength:  0,
		DuplicateLabels: "first",
		LogLevel:        "info",
	}
}

// Load merges defaults, an optional .env file, the YAML file named by
// CONFIG_FILE and environment overrides, then validates the result.
func Load() (Settings, error) {
	if err := loadDotEnv(getEnvOrDefault("ENV_FILE", ".env")); err != nil {
		return Settings{}, err
	}

	settings := Defaults()

	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		if err := applyYAML(&settings, configPath); err != nil {
			return Settings{}, err
		}
	}

	applyEnv(&settings)

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// loadDotEnv sets variables from path without overriding ones already in
// the environment. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func applyYAML(settings *Settings, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	setString(&settings.HitsPath, config.Input.HitsPath)
	setString(&settings.LabelsPath, config.Input.LabelsPath)
	setString(&settings.DataPath, config.System.DataPath)
	setString(&settings.ModelPath, config.Model.ModelPath)
	setString(&settings.ModelsDir, config.Model.ModelsDir)
	setString(&settings.OutputDir, config.System.OutputDir)
	setString(&settings.DuplicateLabels, config.Aggregation.DuplicateLabels)
	setString(&settings.MetricsFile, config.System.MetricsFile)
	setString(&settings.LogLevel, config.System.LogLevel)

	if config.Model.HiddenSize != 0 {
		settings.HiddenSize = config.Model.HiddenSize
	}
	if config.Model.NumLayers != 0 {
		settings.NumLayers = config.Model.NumLayers
	}
	if config.Training.LearningRate != 0 {
		settings.LearningRate = config.Training.LearningRate
	}
	if config.Training.Epochs != 0 {
		settings.Epochs = config.Training.Epochs
	}
	if config.Training.ProgressEvery != 0 {
		settings.ProgressEvery = config.Training.ProgressEvery
	}
	if config.Training.Seed != 0 {
		settings.Seed = config.Training.Seed
	}
	if config.Aggregation.MaxTrackLength != 0 {
		settings.MaxTrackLength = config.Aggregation.MaxTrackLength
	}
	if config.Aggregation.MinTrackLength != 0 {
		settings.MinTrackLength = config.Aggregation.MinTrackLength
	}

	return nil
}

func applyEnv(settings *Settings) {
	settings.HitsPath = getEnvOrDefault("HITS_PATH", settings.HitsPath)
	settings.LabelsPath = getEnvOrDefault("LABELS_PATH", settings.LabelsPath)
	settings.DataPath = getEnvOrDefault("DATA_PATH", settings.DataPath)
	settings.ModelPath = getEnvOrDefault("MODEL_PATH", settings.ModelPath)
	settings.ModelsDir = getEnvOrDefault("MODELS_DIR", settings.ModelsDir)
	settings.OutputDir = getEnvOrDefault("OUTPUT_DIR", settings.OutputDir)
	settings.HiddenSize = getIntOrDefault("HIDDEN_SIZE", settings.HiddenSize)
	settings.NumLayers = getIntOrDefault("NUM_LAYERS", settings.NumLayers)
	settings.LearningRate = getFloatOrDefault("LEARNING_RATE", settings.LearningRate)
	settings.Epochs = getIntOrDefault("EPOCHS", settings.Epochs)
	settings.ProgressEvery = getIntOrDefault("PROGRESS_EVERY", settings.ProgressEvery)
	settings.Seed = getInt64OrDefault("SEED", settings.Seed)
	settings.MaxTrackLength = getFloatOrDefault("MAX_TRACK_LENGTH", settings.MaxTrackLength)
	settings.MinTrackLength = getFloatOrDefault("MIN_TRACK_LENGTH", settings.MinTrackLength)
	settings.DuplicateLabels = strings.ToLower(getEnvOrDefault("DUPLICATE_LABELS", settings.DuplicateLabels))
	settings.MetricsFile = getEnvOrDefault("METRICS_FILE", settings.MetricsFile)
	settings.LogLevel = strings.ToLower(getEnvOrDefault("LOG_LEVEL", settings.LogLevel))
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// validateSettings performs range checks on every numeric setting
func validateSettings(settings *Settings) error {
	// Validate paths
	if settings.DataPath == "" {
		return fmt.Errorf("data path cannot be empty")
	}
	if settings.ModelsDir == "" {
		return fmt.Errorf("models directory cannot be empty")
	}
	if settings.OutputDir == "" {
		return fmt.Errorf("output directory cannot be empty")
	}

	// Validate model shape
	if settings.HiddenSize <= 0 || settings.HiddenSize > 1024 {
		return fmt.Errorf("hidden size must be between 1 and 1024, got %d", settings.HiddenSize)
	}
	if settings.NumLayers <= 0 || settings.NumLayers > 16 {
		return fmt.Errorf("number of layers must be between 1 and 16, got %d", settings.NumLayers)
	}

	// Validate training parameters
	if settings.LearningRate <= 0 || settings.LearningRate > 1 {
		return fmt.Errorf("learning rate must be between 0 and 1, got %f", settings.LearningRate)
	}
	if settings.Epochs <= 0 || settings.Epochs > 10_000_000 {
		return fmt.Errorf("epochs must be between 1 and 10000000, got %d", settings.Epochs)
	}
	if settings.ProgressEvery <= 0 {
		return fmt.Errorf("progress interval must be positive, got %d", settings.ProgressEvery)
	}
	if settings.Seed < 0 {
		return fmt.Errorf("seed must not be negative, got %d", settings.Seed)
	}

	// Validate aggregation limits
	if settings.MinTrackLength < 0 {
		return fmt.Errorf("min track length must not be negative, got %f", settings.MinTrackLength)
	}
	if settings.MaxTrackLength <= settings.MinTrackLength {
		return fmt.Errorf("max track length must exceed min track length, got %f <= %f",
			settings.MaxTrackLength, settings.MinTrackLength)
	}
	switch settings.DuplicateLabels {
	case "first", "fail":
	default:
		return fmt.Errorf("duplicate label policy must be first or fail, got %q", settings.DuplicateLabels)
	}

	switch settings.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be debug, info, warn or error, got %q", settings.LogLevel)
	}

	return nil
}
