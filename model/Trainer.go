package model

import (
	"fmt"
	"log/slog"

	"github.com/samuelfneumann/mega/buffer/replay"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Learner is a control scoring model that can be fit to mini-batches
// of replayed transitions
type Learner interface {
	Train(batch map[string]*mat.Dense) (float64, error)
	BatchSize() int
}

// Trainer fits the direct and, if present, latent control models to
// transitions sampled from a replay buffer
type Trainer struct {
	direct     Learner
	latent     Learner
	iterations int
	logger     *slog.Logger
}

// NewTrainer returns a new Trainer which performs iterations updates
// of each model per call to Update. The latent model may be nil.
func NewTrainer(direct, latent Learner, iterations int,
	logger *slog.Logger) (*Trainer, error) {
	if direct == nil {
		return nil, fmt.Errorf("newTrainer: direct model must be non-nil")
	}
	if iterations < 1 {
		return nil, fmt.Errorf("newTrainer: iterations must be positive "+
			"\n\twant(>=1)\n\thave(%v)", iterations)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Trainer{
		direct:     direct,
		latent:     latent,
		iterations: iterations,
		logger:     logger,
	}, nil
}

// Update trains the models on mini-batches drawn from buf and returns
// their mean losses. If buf holds fewer transitions than a model's
// batch size, that model is not trained.
func (t *Trainer) Update(buf *replay.Buffer) (map[string]float64, error) {
	losses := make(map[string]float64, 2)

	models := []struct {
		name    string
		learner Learner
	}{
		{"direct_control_loss", t.direct},
		{"latent_control_loss", t.latent},
	}
	for _, m := range models {
		if m.learner == nil {
			continue
		}
		if buf.Len() < m.learner.BatchSize() {
			t.logger.Debug("replay buffer too small to train",
				"model", m.name, "len", buf.Len(),
				"batch", m.learner.BatchSize())
			continue
		}

		values := make([]float64, t.iterations)
		for i := range values {
			batch, err := buf.Sample(m.learner.BatchSize())
			if err != nil {
				return nil, fmt.Errorf("update: %v", err)
			}
			if values[i], err = m.learner.Train(batch); err != nil {
				return nil, fmt.Errorf("update: %v: %v", m.name, err)
			}
		}
		losses[m.name] = stat.Mean(values, nil)
	}
	return losses, nil
}
