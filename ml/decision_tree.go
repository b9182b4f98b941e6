package ml

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

// DecisionTree is a CART classifier using gini impurity. Nodes are stored flat;
// children are absolute indices into Nodes.
type DecisionTree struct {
	MaxDepth        int
	MinSamplesSplit int
	// MaxFeatures limits the features examined per split; 0 examines all.
	MaxFeatures int
	RandomState int64

	Nodes    []TreeNode
	Features int
	Classes  int
}

type TreeNode struct {
	FeatureIdx   int       `json:"feature_idx"`
	Threshold    float64   `json:"threshold"`
	LeftChild    int       `json:"left_child"`
	RightChild   int       `json:"right_child"`
	IsLeaf       bool      `json:"is_leaf"`
	Distribution []float64 `json:"distribution"`
}

func (dt *DecisionTree) Fit(features [][]float64, labels []int, classes int) error {
	if _, err := validateTrainingSet(features, labels, classes); err != nil {
		return err
	}
	sample := make([]int, len(features))
	for i := range sample {
		sample[i] = i
	}
	return dt.fitSample(features, labels, classes, sample, rand.New(rand.NewSource(dt.RandomState)))
}

// fitSample grows the tree on the rows listed in sample. Rows may repeat.
func (dt *DecisionTree) fitSample(features [][]float64, labels []int, classes int, sample []int, rnd *rand.Rand) error {
	if len(sample) == 0 {
		return errors.New("empty sample")
	}
	minSplit := dt.MinSamplesSplit
	if minSplit < 2 {
		minSplit = 2
	}
	dt.Features = len(features[0])
	dt.Classes = classes
	dt.Nodes = nil

	b := &treeBuilder{
		features:    features,
		labels:      labels,
		classes:     classes,
		maxDepth:    dt.MaxDepth,
		minSplit:    minSplit,
		maxFeatures: dt.MaxFeatures,
		rnd:         rnd,
	}
	dt.grow(b, sample, 0)
	return nil
}

func (dt *DecisionTree) PredictProba(features []float64) ([]float64, error) {
	if len(dt.Nodes) == 0 {
		return nil, errors.New("model not trained")
	}
	idx := 0
	for {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return append([]float64(nil), node.Distribution...), nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return nil, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.Nodes) {
			return nil, errors.New("invalid tree state")
		}
	}
}

func (dt *DecisionTree) Predict(features []float64) (int, float64, error) {
	proba, err := dt.PredictProba(features)
	if err != nil {
		return 0, 0, err
	}
	label := argmax(proba)
	return label, proba[label], nil
}

func (dt *DecisionTree) NumFeatures() int { return dt.Features }
func (dt *DecisionTree) NumClasses() int  { return dt.Classes }

// validate checks the node graph of a decoded tree. Children always sit after their
// parent, which rules out cycles in the prediction walk.
func (dt *DecisionTree) validate() error {
	if len(dt.Nodes) == 0 {
		return errors.New("tree has no nodes")
	}
	if dt.Features <= 0 || dt.Classes <= 0 {
		return fmt.Errorf("tree has %d features and %d classes", dt.Features, dt.Classes)
	}
	for i, node := range dt.Nodes {
		if node.IsLeaf {
			if len(node.Distribution) != dt.Classes {
				return fmt.Errorf("leaf %d has %d classes, want %d", i, len(node.Distribution), dt.Classes)
			}
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= dt.Features {
			return fmt.Errorf("node %d splits on feature %d of %d", i, node.FeatureIdx, dt.Features)
		}
		for _, child := range []int{node.LeftChild, node.RightChild} {
			if child <= i || child >= len(dt.Nodes) {
				return fmt.Errorf("node %d has invalid child %d", i, child)
			}
		}
	}
	return nil
}

type treeBuilder struct {
	features    [][]float64
	labels      []int
	classes     int
	maxDepth    int
	minSplit    int
	maxFeatures int
	rnd         *rand.Rand
}

type split struct {
	feature   int
	threshold float64
	impurity  float64
}

func (dt *DecisionTree) grow(b *treeBuilder, sample []int, depth int) int {
	counts := b.classCounts(sample)
	self := len(dt.Nodes)
	dt.Nodes = append(dt.Nodes, TreeNode{
		FeatureIdx:   -1,
		LeftChild:    -1,
		RightChild:   -1,
		IsLeaf:       true,
		Distribution: distribution(counts),
	})

	if isPure(counts) || len(sample) < b.minSplit || (b.maxDepth > 0 && depth >= b.maxDepth) {
		return self
	}
	best, ok := b.bestSplit(sample)
	if !ok {
		return self
	}

	left := make([]int, 0, len(sample))
	right := make([]int, 0, len(sample))
	for _, row := range sample {
		if b.features[row][best.feature] <= best.threshold {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}

	leftIdx := dt.grow(b, left, depth+1)
	rightIdx := dt.grow(b, right, depth+1)
	node := &dt.Nodes[self]
	node.FeatureIdx = best.feature
	node.Threshold = best.threshold
	node.LeftChild = leftIdx
	node.RightChild = rightIdx
	node.IsLeaf = false
	return self
}

// bestSplit visits features in random order and stops once maxFeatures
// non-constant features were examined.
func (b *treeBuilder) bestSplit(sample []int) (split, bool) {
	featureCount := len(b.features[0])
	limit := b.maxFeatures
	if limit <= 0 || limit > featureCount {
		limit = featureCount
	}

	best := split{feature: -1}
	examined := 0
	for _, feature := range b.rnd.Perm(featureCount) {
		if examined >= limit {
			break
		}
		candidate, ok := b.scanFeature(sample, feature)
		if !ok {
			continue
		}
		examined++
		if best.feature == -1 || candidate.impurity < best.impurity {
			best = candidate
		}
	}
	return best, best.feature != -1
}

// scanFeature sweeps the sorted values of one feature and returns the threshold with
// the lowest weighted gini. ok is false when the feature is constant on the sample.
func (b *treeBuilder) scanFeature(sample []int, feature int) (split, bool) {
	rows := append([]int(nil), sample...)
	sort.SliceStable(rows, func(i, j int) bool {
		return b.features[rows[i]][feature] < b.features[rows[j]][feature]
	})

	total := float64(len(rows))
	right := b.classCounts(rows)
	left := make([]float64, b.classes)
	best := split{feature: -1}

	for i := 0; i < len(rows)-1; i++ {
		label := b.labels[rows[i]]
		left[label]++
		right[label]--

		current := b.features[rows[i]][feature]
		next := b.features[rows[i+1]][feature]
		if current == next {
			continue
		}
		nLeft := float64(i + 1)
		impurity := (nLeft/total)*giniFromCounts(left, nLeft) + ((total-nLeft)/total)*giniFromCounts(right, total-nLeft)
		if best.feature == -1 || impurity < best.impurity {
			best = split{feature: feature, threshold: (current + next) / 2, impurity: impurity}
		}
	}
	return best, best.feature != -1
}

func (b *treeBuilder) classCounts(sample []int) []float64 {
	counts := make([]float64, b.classes)
	for _, row := range sample {
		counts[b.labels[row]]++
	}
	return counts
}

func giniFromCounts(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	impurity := 1.0
	for _, c := range counts {
		p := c / n
		impurity -= p * p
	}
	return impurity
}

func distribution(counts []float64) []float64 {
	var total float64
	for _, c := range counts {
		total += c
	}
	out := make([]float64, len(counts))
	if total == 0 {
		return out
	}
	for i, c := range counts {
		out[i] = c / total
	}
	return out
}

func isPure(counts []float64) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}
