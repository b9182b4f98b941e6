package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultNEstimators = 100
	DefaultRandomState = 42
)

// RandomForest is a bagged ensemble of decision trees whose class distributions are
// averaged at prediction time. Tree i is grown with seed RandomState+i, so the fitted
// forest does not depend on goroutine scheduling.
type RandomForest struct {
	NEstimators int
	MaxDepth    int
	// MaxFeatures per split; 0 means floor(sqrt(features)).
	MaxFeatures int
	Bootstrap   bool
	RandomState int64

	Trees    []*DecisionTree
	Features int
	Classes  int
}

type ForestOption func(*RandomForest)

func WithNEstimators(n int) ForestOption {
	return func(rf *RandomForest) {
		if n > 0 {
			rf.NEstimators = n
		}
	}
}

func WithMaxDepth(depth int) ForestOption {
	return func(rf *RandomForest) { rf.MaxDepth = depth }
}

func WithMaxFeatures(k int) ForestOption {
	return func(rf *RandomForest) { rf.MaxFeatures = k }
}

func WithBootstrap(b bool) ForestOption {
	return func(rf *RandomForest) { rf.Bootstrap = b }
}

func WithRandomState(seed int64) ForestOption {
	return func(rf *RandomForest) { rf.RandomState = seed }
}

func NewRandomForest(opts ...ForestOption) *RandomForest {
	rf := &RandomForest{
		NEstimators: DefaultNEstimators,
		Bootstrap:   true,
		RandomState: DefaultRandomState,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

func (rf *RandomForest) Fit(features [][]float64, labels []int, classes int) error {
	width, err := validateTrainingSet(features, labels, classes)
	if err != nil {
		return err
	}
	if rf.NEstimators <= 0 {
		return errors.New("n_estimators must be positive")
	}
	maxFeatures := rf.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = int(math.Sqrt(float64(width)))
		if maxFeatures < 1 {
			maxFeatures = 1
		}
	}

	n := len(features)
	trees := make([]*DecisionTree, rf.NEstimators)
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range trees {
		seed := rf.RandomState + int64(i)
		g.Go(func() error {
			rnd := rand.New(rand.NewSource(seed))
			sample := make([]int, n)
			for j := range sample {
				if rf.Bootstrap {
					sample[j] = rnd.Intn(n)
				} else {
					sample[j] = j
				}
			}
			tree := &DecisionTree{
				MaxDepth:    rf.MaxDepth,
				MaxFeatures: maxFeatures,
				RandomState: seed,
			}
			if err := tree.fitSample(features, labels, classes, sample, rnd); err != nil {
				return fmt.Errorf("tree %d: %w", i, err)
			}
			trees[i] = tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	rf.Trees = trees
	rf.Features = width
	rf.Classes = classes
	return nil
}

func (rf *RandomForest) PredictProba(features []float64) ([]float64, error) {
	if len(rf.Trees) == 0 {
		return nil, errors.New("model not trained")
	}
	if len(features) != rf.Features {
		return nil, fmt.Errorf("expected %d features, got %d", rf.Features, len(features))
	}
	proba := make([]float64, rf.Classes)
	for _, tree := range rf.Trees {
		p, err := tree.PredictProba(features)
		if err != nil {
			return nil, err
		}
		for c := range proba {
			if c < len(p) {
				proba[c] += p[c]
			}
		}
	}
	for c := range proba {
		proba[c] /= float64(len(rf.Trees))
	}
	return proba, nil
}

func (rf *RandomForest) Predict(features []float64) (int, float64, error) {
	proba, err := rf.PredictProba(features)
	if err != nil {
		return 0, 0, err
	}
	label := argmax(proba)
	return label, proba[label], nil
}

func (rf *RandomForest) NumFeatures() int { return rf.Features }
func (rf *RandomForest) NumClasses() int  { return rf.Classes }

func (rf *RandomForest) validate() error {
	if len(rf.Trees) == 0 {
		return errors.New("forest has no trees")
	}
	for i, tree := range rf.Trees {
		if tree == nil {
			return fmt.Errorf("tree %d is missing", i)
		}
		if tree.Features != rf.Features || tree.Classes != rf.Classes {
			return fmt.Errorf("tree %d has shape %dx%d, forest is %dx%d", i, tree.Features, tree.Classes, rf.Features, rf.Classes)
		}
		if err := tree.validate(); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}
