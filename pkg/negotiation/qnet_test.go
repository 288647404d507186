package negotiation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hellomuba/YarnMarket-AI/pkg/models"
)

// lcgRand is a deterministic RandomSource for tests.
type lcgRand struct {
	state uint64
}

func newTestRand(seed uint64) *lcgRand {
	return &lcgRand{state: seed}
}

func (r *lcgRand) next() uint64 {
	r.state = r.state*6364136223846793005 + 1442695040888963407
	return r.state
}

func (r *lcgRand) Float64() float64 {
	return float64(r.next()>>11) / float64(1<<53)
}

func (r *lcgRand) Intn(n int) int {
	return int(r.next() % uint64(n))
}

func testFeatures(v float64) models.FeatureVector {
	return models.FeatureVector{v, 0.2, 0.1, 0.3, 0.2, 0.5, 0.1}
}

func TestQNetwork_ScoreShape(t *testing.T) {
	net := NewQNetwork(16, 0.001, 0.95, 0.005, newTestRand(1))

	scores := net.Score(testFeatures(0.5))
	assert.Len(t, scores, models.ActionCount)

	// Same input, same scores: scoring must not mutate the network.
	again := net.Score(testFeatures(0.5))
	assert.Equal(t, scores, again)
}

func TestQNetwork_TrainStepReducesLoss(t *testing.T) {
	net := NewQNetwork(16, 0.01, 0.95, 0.005, newTestRand(2))

	batch := []models.Experience{{
		State:    testFeatures(0.5),
		Action:   models.ActionCounter,
		Reward:   1.0,
		Terminal: true,
	}}

	first := net.TrainStep(batch)
	var last float64
	for i := 0; i < 500; i++ {
		last = net.TrainStep(batch)
	}

	assert.Less(t, last, first, "repeated training on a fixed target should reduce loss")
}

func TestQNetwork_TrainStepMovesPredictionTowardTarget(t *testing.T) {
	net := NewQNetwork(16, 0.01, 0.95, 0.005, newTestRand(3))

	exp := models.Experience{
		State:    testFeatures(0.8),
		Action:   models.ActionAccept,
		Reward:   2.0,
		Terminal: true,
	}

	before := net.Score(exp.State)[models.ActionAccept]
	for i := 0; i < 500; i++ {
		net.TrainStep([]models.Experience{exp})
	}
	after := net.Score(exp.State)[models.ActionAccept]

	assert.Greater(t, after, before)
	assert.InDelta(t, 2.0, after, 1.0)
}

func TestQNetwork_SoftUpdateBlendsTarget(t *testing.T) {
	net := NewQNetwork(8, 0.01, 0.95, 0.5, newTestRand(4))

	// Drive the online network away from the target, then check the target
	// followed it partway.
	batch := []models.Experience{{
		State:    testFeatures(0.4),
		Action:   models.ActionStall,
		Reward:   5.0,
		Terminal: true,
	}}
	for i := 0; i < 50; i++ {
		net.TrainStep(batch)
	}

	feats := testFeatures(0.4)
	onlineActs := forward(net.layers, feats[:])
	targetActs := forward(net.target, feats[:])
	online := onlineActs[len(onlineActs)-1][models.ActionStall]
	target := targetActs[len(targetActs)-1][models.ActionStall]

	// With tau=0.5 the target tracks the online network closely but lags it.
	assert.InDelta(t, online, target, 1.0)
	assert.NotEqual(t, 0.0, target)
}

func TestQNetwork_SnapshotRoundTrip(t *testing.T) {
	net := NewQNetwork(16, 0.01, 0.95, 0.005, newTestRand(5))
	for i := 0; i < 20; i++ {
		net.TrainStep([]models.Experience{{
			State:    testFeatures(0.3),
			Action:   models.ActionBundle,
			Reward:   1.5,
			Terminal: true,
		}})
	}

	data, err := net.Snapshot()
	require.NoError(t, err)

	restored := NewQNetwork(16, 0.01, 0.95, 0.005, newTestRand(99))
	require.NoError(t, restored.Restore(data))

	assert.Equal(t, net.Score(testFeatures(0.3)), restored.Score(testFeatures(0.3)))
}

func TestQNetwork_RestoreRejectsCorruptData(t *testing.T) {
	net := NewQNetwork(16, 0.01, 0.95, 0.005, newTestRand(6))

	assert.Error(t, net.Restore([]byte("not json")))
	assert.Error(t, net.Restore([]byte(`{"layers":[]}`)))
}

func TestQNetwork_RestoreRejectsWrongShape(t *testing.T) {
	small := NewQNetwork(8, 0.01, 0.95, 0.005, newTestRand(7))
	big := NewQNetwork(16, 0.01, 0.95, 0.005, newTestRand(8))

	data, err := small.Snapshot()
	require.NoError(t, err)
	assert.Error(t, big.Restore(data))
}
