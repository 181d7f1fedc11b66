// Package artifact persists and restores the trained model bundle: the
// forest, the fitted vectorizer and the training metadata.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/TobiSchelling/ReviewLens/internal/forest"
	"github.com/TobiSchelling/ReviewLens/internal/train"
	"github.com/TobiSchelling/ReviewLens/internal/vectorize"
)

// File names inside a model directory.
const (
	ModelFile      = "sentiment_model.json"
	VectorizerFile = "vectorizer.json"
	MetadataFile   = "metadata/model_info.json"
)

// Bundle parts, as reported by MissingError.
const (
	PartModel      = "model"
	PartVectorizer = "vectorizer"
	PartMetadata   = "metadata"
)

// ErrArtifactMissing is wrapped by every Load failure.
var ErrArtifactMissing = errors.New("model artifact missing")

// MissingError reports a bundle part that is absent, unreadable or corrupt.
type MissingError struct {
	Part string
	Path string
	Err  error
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("model artifact %s at %s: %v", e.Part, e.Path, e.Err)
}

func (e *MissingError) Unwrap() []error {
	return []error{ErrArtifactMissing, e.Err}
}

// Metadata describes how a bundle was produced.
type Metadata struct {
	TrainingDate       time.Time        `json:"training_date"`
	ModelType          string           `json:"model_type"`
	VectorizerParams   vectorize.Params `json:"vectorizer_params"`
	FeatureCount       int              `json:"feature_count"`
	TrainingSamples    int              `json:"training_samples"`
	ModelPerformance   train.Metrics    `json:"model_performance"`
	PreprocessingSteps []string         `json:"preprocessing_steps"`
}

// Bundle is a trained model ready for inference. It is never modified after
// construction.
type Bundle struct {
	Vectorizer *vectorize.Vectorizer
	Classifier *forest.Forest
	Metadata   Metadata
}

// Save writes the bundle into dir. Each file is written to a temporary name
// and renamed into place.
func Save(dir string, b *Bundle) error {
	if b == nil || b.Vectorizer == nil || b.Classifier == nil {
		return errors.New("incomplete model bundle")
	}
	parts := []struct {
		name string
		v    any
	}{
		{ModelFile, b.Classifier},
		{VectorizerFile, b.Vectorizer},
		{MetadataFile, b.Metadata},
	}
	for _, p := range parts {
		if err := writeJSON(filepath.Join(dir, p.name), p.v); err != nil {
			return err
		}
	}
	return nil
}

// Load restores a bundle saved by Save.
func Load(dir string) (*Bundle, error) {
	var clf forest.Forest
	if err := readJSON(dir, ModelFile, PartModel, &clf); err != nil {
		return nil, err
	}
	if err := clf.Validate(); err != nil {
		return nil, &MissingError{Part: PartModel, Path: filepath.Join(dir, ModelFile), Err: err}
	}

	var vec vectorize.Vectorizer
	if err := readJSON(dir, VectorizerFile, PartVectorizer, &vec); err != nil {
		return nil, err
	}
	if vec.Len() != clf.NFeatures {
		return nil, &MissingError{
			Part: PartVectorizer,
			Path: filepath.Join(dir, VectorizerFile),
			Err:  fmt.Errorf("vocabulary has %d terms but the model expects %d features", vec.Len(), clf.NFeatures),
		}
	}

	var meta Metadata
	if err := readJSON(dir, MetadataFile, PartMetadata, &meta); err != nil {
		return nil, err
	}
	return &Bundle{Vectorizer: &vec, Classifier: &clf, Metadata: meta}, nil
}

// LoadMetadata reads only the metadata file, for status displays.
func LoadMetadata(dir string) (*Metadata, error) {
	var meta Metadata
	if err := readJSON(dir, MetadataFile, PartMetadata, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Exists reports whether every bundle file is present in dir.
func Exists(dir string) bool {
	for _, name := range []string{ModelFile, VectorizerFile, MetadataFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

func readJSON(dir, name, part string, v any) error {
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return &MissingError{Part: part, Path: path, Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &MissingError{Part: part, Path: path, Err: err}
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	return WriteFileAtomic(path, data)
}

// WriteFileAtomic creates parent directories, writes data to a temporary
// file next to path and renames it over path.
func WriteFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming into %s: %w", path, err)
	}
	return nil
}
