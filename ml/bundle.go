package ml

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// BundleVersion is bumped whenever the persisted layout changes incompatibly.
const BundleVersion = 1

// Field names as exposed to clients. The state encoder answers to "place" on the wire.
const (
	FieldSoilType = "soil_type"
	FieldSeason   = "season"
	FieldPlace    = "place"
	FieldCrop     = "crop"
)

func init() {
	gob.Register(&RandomForest{})
	gob.Register(&DecisionTree{})
}

type BundleMetadata struct {
	Version     int       `json:"version"`
	ModelType   string    `json:"model_type"`
	Dataset     string    `json:"dataset,omitempty"`
	Rows        int       `json:"rows"`
	NEstimators int       `json:"n_estimators,omitempty"`
	RandomState int64     `json:"random_state"`
	Accuracy    float64   `json:"accuracy"`
	TrainedAt   time.Time `json:"trained_at"`
}

// Bundle is the deployable unit: the fitted classifier plus the exact encoders its
// training matrix was built with. The two halves are never loaded separately.
type Bundle struct {
	Model    Classifier
	Soil     *LabelEncoder
	Season   *LabelEncoder
	State    *LabelEncoder
	Crop     *LabelEncoder
	Metadata BundleMetadata
}

// Validate checks that the model and encoders belong together.
func (b *Bundle) Validate() error {
	if b == nil || b.Model == nil {
		return inputErrorf("bundle has no model")
	}
	if b.Metadata.Version != BundleVersion {
		return inputErrorf("unsupported bundle version %d (want %d)", b.Metadata.Version, BundleVersion)
	}
	for _, enc := range []*LabelEncoder{b.Soil, b.Season, b.State, b.Crop} {
		if enc == nil {
			return inputErrorf("bundle is missing an encoder")
		}
		if err := enc.validate(); err != nil {
			return err
		}
	}
	if got := b.Model.NumFeatures(); got != 3 {
		return inputErrorf("model expects %d features, bundle encodes 3", got)
	}
	if got, want := b.Model.NumClasses(), b.Crop.Len(); got != want {
		return inputErrorf("model predicts %d classes, crop encoder has %d", got, want)
	}
	if v, ok := b.Model.(interface{ validate() error }); ok {
		if err := v.validate(); err != nil {
			return inputErrorf("malformed model: %v", err)
		}
	}
	return nil
}

// Encode writes the bundle in gob format.
func (b *Bundle) Encode(w io.Writer) error {
	if err := b.Validate(); err != nil {
		return err
	}
	return gob.NewEncoder(w).Encode(b)
}

// DecodeBundle reads and validates a bundle written by Encode.
func DecodeBundle(r io.Reader) (*Bundle, error) {
	var b Bundle
	if err := gob.NewDecoder(r).Decode(&b); err != nil {
		return nil, inputErrorf("malformed model artifact: %v", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Save writes the bundle next to path and renames it into place, so readers only ever
// observe a complete artifact.
func (b *Bundle) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := b.Encode(w); err != nil {
		tmp.Close()
		return fmt.Errorf("encode bundle: %w", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func LoadBundle(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model artifact: %w", err)
	}
	defer f.Close()
	return DecodeBundle(bufio.NewReader(f))
}

// Vocabularies returns the fitted classes per client-facing field name.
func (b *Bundle) Vocabularies() map[string][]string {
	return map[string][]string{
		FieldSoilType: b.Soil.Vocabulary(),
		FieldSeason:   b.Season.Vocabulary(),
		FieldPlace:    b.State.Vocabulary(),
		FieldCrop:     b.Crop.Vocabulary(),
	}
}
