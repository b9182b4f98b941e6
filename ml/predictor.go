package ml

import (
	"fmt"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CropQuery is one recommendation request as received from a client.
type CropQuery struct {
	SoilType string `json:"soil_type"`
	Season   string `json:"season"`
	Place    string `json:"place"`
}

// Normalize trims surrounding whitespace the same way dataset values are trimmed
// before the encoders are fitted.
func (q CropQuery) Normalize() CropQuery {
	return CropQuery{
		SoilType: strings.TrimSpace(q.SoilType),
		Season:   strings.TrimSpace(q.Season),
		Place:    strings.TrimSpace(q.Place),
	}
}

type Recommendation struct {
	Crop       string  `json:"recommended_crop"`
	Confidence float64 `json:"confidence"`
}

// Predictor answers crop queries from one immutable bundle. It is safe for
// concurrent use.
type Predictor struct {
	bundle *Bundle
	cache  *lru.Cache[CropQuery, Recommendation]
}

// NewPredictor wraps bundle. cacheSize <= 0 disables memoization.
func NewPredictor(bundle *Bundle, cacheSize int) (*Predictor, error) {
	if err := bundle.Validate(); err != nil {
		return nil, err
	}
	p := &Predictor{bundle: bundle}
	if cacheSize > 0 {
		cache, err := lru.New[CropQuery, Recommendation](cacheSize)
		if err != nil {
			return nil, err
		}
		p.cache = cache
	}
	return p, nil
}

func (p *Predictor) Bundle() *Bundle {
	return p.bundle
}

// Recommend normalizes and validates q, encodes it, runs single-row inference and decodes the
// predicted crop. Every failure other than a missing field or an unknown category is
// returned as an *InternalError.
func (p *Predictor) Recommend(q CropQuery) (rec Recommendation, err error) {
	q = q.Normalize()
	if missing := missingFields(q); len(missing) > 0 {
		return Recommendation{}, &MissingFieldError{Fields: missing}
	}
	b := p.bundle
	checks := []struct {
		value string
		enc   *LabelEncoder
	}{
		{q.SoilType, b.Soil},
		{q.Season, b.Season},
		{q.Place, b.State},
	}
	for _, c := range checks {
		if !c.enc.Contains(c.value) {
			return Recommendation{}, &UnknownCategoryError{Field: c.enc.Field, Value: c.value}
		}
	}

	if p.cache != nil {
		if cached, ok := p.cache.Get(q); ok {
			return cached, nil
		}
	}

	defer func() {
		if r := recover(); r != nil {
			rec = Recommendation{}
			err = &InternalError{Err: fmt.Errorf("prediction panicked: %v", r)}
		}
	}()

	rec, err = p.predict(q)
	if err != nil {
		return Recommendation{}, &InternalError{Err: err}
	}
	if p.cache != nil {
		p.cache.Add(q, rec)
	}
	return rec, nil
}

func (p *Predictor) predict(q CropQuery) (Recommendation, error) {
	b := p.bundle
	soil, err := b.Soil.Encode(q.SoilType)
	if err != nil {
		return Recommendation{}, err
	}
	season, err := b.Season.Encode(q.Season)
	if err != nil {
		return Recommendation{}, err
	}
	state, err := b.State.Encode(q.Place)
	if err != nil {
		return Recommendation{}, err
	}

	code, confidence, err := b.Model.Predict(FeatureVector(soil, season, state))
	if err != nil {
		return Recommendation{}, err
	}
	crop, err := b.Crop.Decode(code)
	if err != nil {
		return Recommendation{}, err
	}
	return Recommendation{Crop: crop, Confidence: confidence}, nil
}

func missingFields(q CropQuery) []string {
	var missing []string
	if q.SoilType == "" {
		missing = append(missing, FieldSoilType)
	}
	if q.Season == "" {
		missing = append(missing, FieldSeason)
	}
	if q.Place == "" {
		missing = append(missing, FieldPlace)
	}
	return missing
}

// ModelRegistry holds the predictor currently serving requests. Swapping in a new
// predictor never touches the previous bundle.
type ModelRegistry struct {
	current atomic.Pointer[Predictor]
}

func NewModelRegistry(p *Predictor) *ModelRegistry {
	r := &ModelRegistry{}
	r.current.Store(p)
	return r
}

// Current returns the active predictor, or nil if none was loaded.
func (r *ModelRegistry) Current() *Predictor {
	if r == nil {
		return nil
	}
	return r.current.Load()
}

func (r *ModelRegistry) Swap(p *Predictor) *Predictor {
	return r.current.Swap(p)
}
