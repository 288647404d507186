package negotiation

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/hellomuba/YarnMarket-AI/pkg/models"
)

// RandomSource supplies the randomness used for weight initialization and
// epsilon-greedy exploration. Injecting it keeps tests deterministic.
type RandomSource interface {
	Float64() float64
	Intn(n int) int
}

const (
	stateSize  = 7
	actionSize = models.ActionCount
)

// denseLayer is a fully-connected layer. Weights are row-major [out][in].
type denseLayer struct {
	W [][]float64 `json:"w"`
	B []float64   `json:"b"`
}

func newDenseLayer(in, out int, rng RandomSource) denseLayer {
	// He initialization, suited to ReLU activations.
	scale := math.Sqrt(2.0 / float64(in))
	l := denseLayer{
		W: make([][]float64, out),
		B: make([]float64, out),
	}
	for i := range l.W {
		l.W[i] = make([]float64, in)
		for j := range l.W[i] {
			l.W[i][j] = (rng.Float64()*2 - 1) * scale
		}
	}
	return l
}

func (l denseLayer) clone() denseLayer {
	c := denseLayer{
		W: make([][]float64, len(l.W)),
		B: append([]float64(nil), l.B...),
	}
	for i := range l.W {
		c.W[i] = append([]float64(nil), l.W[i]...)
	}
	return c
}

// QNetwork is a small feed-forward value network mapping a feature vector to
// one score per action. A separate, slowly-updated target network stabilizes
// the temporal-difference targets.
//
// Not safe for concurrent use; the owning agent serializes scoring against
// training with a read-write lock.
type QNetwork struct {
	layers []denseLayer
	target []denseLayer

	learningRate float64
	gamma        float64
	tau          float64
}

// NewQNetwork builds a 7 -> hidden -> hidden -> 5 network with randomly
// initialized weights and a target network starting as an exact copy.
func NewQNetwork(hidden int, learningRate, gamma, tau float64, rng RandomSource) *QNetwork {
	layers := []denseLayer{
		newDenseLayer(stateSize, hidden, rng),
		newDenseLayer(hidden, hidden, rng),
		newDenseLayer(hidden, actionSize, rng),
	}
	n := &QNetwork{
		layers:       layers,
		learningRate: learningRate,
		gamma:        gamma,
		tau:          tau,
	}
	n.syncTarget()
	return n
}

func (n *QNetwork) syncTarget() {
	n.target = make([]denseLayer, len(n.layers))
	for i, l := range n.layers {
		n.target[i] = l.clone()
	}
}

// forward runs the network and returns the activations of every layer.
// activations[0] is the input, activations[len(layers)] the output scores.
// ReLU on hidden layers, linear output.
func forward(layers []denseLayer, input []float64) [][]float64 {
	activations := make([][]float64, len(layers)+1)
	activations[0] = input
	for li, l := range layers {
		in := activations[li]
		out := make([]float64, len(l.W))
		for i := range l.W {
			sum := l.B[i]
			for j, w := range l.W[i] {
				sum += w * in[j]
			}
			if li < len(layers)-1 && sum < 0 {
				sum = 0 // ReLU
			}
			out[i] = sum
		}
		activations[li+1] = out
	}
	return activations
}

// Score returns the five per-action scores for a feature vector, in the
// fixed order accept, counter, bundle, reject, stall.
func (n *QNetwork) Score(features models.FeatureVector) [actionSize]float64 {
	acts := forward(n.layers, features[:])
	var scores [actionSize]float64
	copy(scores[:], acts[len(acts)-1])
	return scores
}

func maxScore(scores []float64) float64 {
	best := scores[0]
	for _, s := range scores[1:] {
		if s > best {
			best = s
		}
	}
	return best
}

// TrainStep runs one gradient step on a batch of experiences. The target for
// each sample is r + gamma * max(target_net(next)) * (1 - terminal); the loss
// is the mean squared error between the online network's score for the taken
// action and that target. After the step the target network is blended
// toward the online network by tau. Returns the batch loss.
func (n *QNetwork) TrainStep(batch []models.Experience) float64 {
	if len(batch) == 0 {
		return 0
	}

	// Accumulate gradients over the batch.
	gradW := make([][][]float64, len(n.layers))
	gradB := make([][]float64, len(n.layers))
	for li, l := range n.layers {
		gradW[li] = make([][]float64, len(l.W))
		for i := range l.W {
			gradW[li][i] = make([]float64, len(l.W[i]))
		}
		gradB[li] = make([]float64, len(l.B))
	}

	totalLoss := 0.0
	for _, exp := range batch {
		target := exp.Reward
		if !exp.Terminal {
			nextActs := forward(n.target, exp.NextState[:])
			target += n.gamma * maxScore(nextActs[len(nextActs)-1])
		}

		acts := forward(n.layers, exp.State[:])
		predicted := acts[len(acts)-1][int(exp.Action)]
		diff := predicted - target
		totalLoss += diff * diff

		// Backpropagate; only the taken action's output carries error.
		delta := make([]float64, actionSize)
		delta[int(exp.Action)] = 2 * diff / float64(len(batch))

		for li := len(n.layers) - 1; li >= 0; li-- {
			in := acts[li]
			l := n.layers[li]
			var prevDelta []float64
			if li > 0 {
				prevDelta = make([]float64, len(in))
			}
			for i, d := range delta {
				if d == 0 {
					continue
				}
				gradB[li][i] += d
				for j := range l.W[i] {
					gradW[li][i][j] += d * in[j]
					if li > 0 {
						prevDelta[j] += d * l.W[i][j]
					}
				}
			}
			if li > 0 {
				// ReLU derivative of the previous layer's output.
				for j := range prevDelta {
					if in[j] <= 0 {
						prevDelta[j] = 0
					}
				}
				delta = prevDelta
			}
		}
	}

	// SGD step.
	for li := range n.layers {
		for i := range n.layers[li].W {
			for j := range n.layers[li].W[i] {
				n.layers[li].W[i][j] -= n.learningRate * gradW[li][i][j]
			}
			n.layers[li].B[i] -= n.learningRate * gradB[li][i]
		}
	}

	n.softUpdateTarget()

	return totalLoss / float64(len(batch))
}

// softUpdateTarget blends the target network toward the online network:
// theta_target = tau*theta + (1-tau)*theta_target.
func (n *QNetwork) softUpdateTarget() {
	for li := range n.target {
		for i := range n.target[li].W {
			for j := range n.target[li].W[i] {
				n.target[li].W[i][j] = n.tau*n.layers[li].W[i][j] + (1-n.tau)*n.target[li].W[i][j]
			}
			n.target[li].B[i] = n.tau*n.layers[li].B[i] + (1-n.tau)*n.target[li].B[i]
		}
	}
}

type networkSnapshot struct {
	Layers []denseLayer `json:"layers"`
}

// Snapshot serializes the online network's weights.
func (n *QNetwork) Snapshot() ([]byte, error) {
	return json.Marshal(networkSnapshot{Layers: n.layers})
}

// Restore replaces the online weights from a snapshot and resets the target
// network to match. Returns an error on malformed or shape-mismatched data.
func (n *QNetwork) Restore(data []byte) error {
	var snap networkSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("invalid model snapshot: %w", err)
	}
	if len(snap.Layers) != len(n.layers) {
		return fmt.Errorf("model snapshot has %d layers, expected %d", len(snap.Layers), len(n.layers))
	}
	for li, l := range snap.Layers {
		if len(l.W) != len(n.layers[li].W) || len(l.B) != len(n.layers[li].B) {
			return fmt.Errorf("model snapshot layer %d has wrong shape", li)
		}
		for i := range l.W {
			if len(l.W[i]) != len(n.layers[li].W[i]) {
				return fmt.Errorf("model snapshot layer %d has wrong shape", li)
			}
		}
	}
	n.layers = snap.Layers
	n.syncTarget()
	return nil
}
