package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// ModelVersion represents one trained model artifact
type ModelVersion struct {
	Version   string       `json:"version"`
	Path      string       `json:"path"`
	CreatedAt time.Time    `json:"created_at"`
	Config    Config       `json:"config"`
	Metrics   ModelMetrics `json:"metrics"`
	IsActive  bool         `json:"is_active"`
}

// ModelMetrics contains the losses recorded when a model was trained
type ModelMetrics struct {
	Epochs              int     `json:"epochs"`
	FinalTrainLoss      float64 `json:"final_train_loss"`
	FinalValidationLoss float64 `json:"final_validation_loss"`
	HoldoutMSE          float64 `json:"holdout_mse"`
	BaselineMSE         float64 `json:"baseline_mse"`
	TrainingSamples     int     `json:"training_samples"`
	ValidationSamples   int     `json:"validation_samples"`
	HoldoutSamples      int     `json:"holdout_samples"`
}

// ModelManager keeps the registry of trained models and which one is active
type ModelManager struct {
	modelsDir    string
	versionsFile string
	versions     []ModelVersion
	currentModel *ModelVersion
	now          func() time.Time
}

// NewModelManager opens the registry in modelsDir, creating the directory
// if needed
func NewModelManager(modelsDir string) (*ModelManager, error) {
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create models directory: %w", err)
	}

	mm := &ModelManager{
		modelsDir:    modelsDir,
		versionsFile: filepath.Join(modelsDir, "model_versions.json"),
		versions:     make([]ModelVersion, 0),
		now:          time.Now,
	}

	if err := mm.loadVersions(); err != nil {
		log.Warn().Err(err).Msg("Failed to load model versions, starting fresh")
	}

	return mm, nil
}

// Dir returns the directory holding the registry
func (mm *ModelManager) Dir() string {
	return mm.modelsDir
}

// AddVersion registers a model artifact and makes it the active version
func (mm *ModelManager) AddVersion(version, modelPath string, cfg Config, metrics ModelMetrics) error {
	mm.versions = append(mm.versions, ModelVersion{
		Version:   version,
		Path:      modelPath,
		CreatedAt: mm.now(),
		Config:    cfg,
		Metrics:   metrics,
	})

	// Newest first
	sort.SliceStable(mm.versions, func(i, j int) bool {
		return mm.versions[i].CreatedAt.After(mm.versions[j].CreatedAt)
	})

	return mm.ActivateVersion(version)
}

// ActivateVersion activates a specific model version. An unknown version
// leaves the registry unchanged.
func (mm *ModelManager) ActivateVersion(version string) error {
	idx := -1
	for i := range mm.versions {
		if mm.versions[i].Version == version {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("version %s not found", version)
	}

	for i := range mm.versions {
		mm.versions[i].IsActive = i == idx
	}
	mm.currentModel = &mm.versions[idx]

	return mm.saveVersions()
}

// Rollback activates the version registered before the active one
func (mm *ModelManager) Rollback() error {
	if len(mm.versions) < 2 {
		return fmt.Errorf("no previous version available for rollback")
	}

	currentIdx := -1
	for i, v := range mm.versions {
		if v.IsActive {
			currentIdx = i
			break
		}
	}

	if currentIdx == -1 {
		return fmt.Errorf("no active version found")
	}

	if currentIdx+1 < len(mm.versions) {
		return mm.ActivateVersion(mm.versions[currentIdx+1].Version)
	}

	return fmt.Errorf("no previous version available")
}

// GetCurrentVersion returns the active version, or nil
func (mm *ModelManager) GetCurrentVersion() *ModelVersion {
	return mm.currentModel
}

// ListVersions returns all versions, newest first
func (mm *ModelManager) ListVersions() []ModelVersion {
	return mm.versions
}

func (mm *ModelManager) loadVersions() error {
	data, err := os.ReadFile(mm.versionsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := json.Unmarshal(data, &mm.versions); err != nil {
		return err
	}

	for i := range mm.versions {
		if mm.versions[i].IsActive {
			mm.currentModel = &mm.versions[i]
			break
		}
	}

	return nil
}

func (mm *ModelManager) saveVersions() error {
	data, err := json.MarshalIndent(mm.versions, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(mm.versionsFile, data, 0o600)
}
