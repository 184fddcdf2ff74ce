package telemetry

import (
	"github.com/samuelfneumann/mega/environment"
	"github.com/samuelfneumann/mega/experiment/checkpointer"
	"gonum.org/v1/gonum/stat"
)

// Returns tracks the extrinsic returns and lengths of finished
// episodes between summaries.
//
// Note: An episode must finish for its return to be tracked.
type Returns struct {
	returns  []float64
	lengths  []float64
	episodes int
}

// NewReturns returns a new Returns tracker
func NewReturns() *Returns {
	return &Returns{}
}

// Track tracks the episodes which ended on a step
func (r *Returns) Track(infos []environment.Info) {
	for _, info := range infos {
		if info.Episode == nil {
			continue
		}
		r.returns = append(r.returns, info.Episode.Return)
		r.lengths = append(r.lengths, float64(info.Episode.Length))
		r.episodes++
	}
}

// Episodes returns the total number of episodes tracked
func (r *Returns) Episodes() int { return r.episodes }

// Pending returns the number of episodes tracked since the last
// summary
func (r *Returns) Pending() int { return len(r.returns) }

// MeanReturn returns the mean return of the episodes tracked since the
// last summary, or 0 if there are none
func (r *Returns) MeanReturn() float64 {
	if len(r.returns) == 0 {
		return 0
	}
	return stat.Mean(r.returns, nil)
}

// Summarize adds the mean return and length of the episodes tracked
// since the last summary to scalars, then clears them. Nothing is
// added if no episode has finished.
func (r *Returns) Summarize(scalars map[string]float64) {
	if len(r.returns) == 0 {
		return
	}
	scalars["ex_raw"] = stat.Mean(r.returns, nil)
	scalars["episode_length"] = stat.Mean(r.lengths, nil)
	scalars["episodes"] = float64(r.episodes)
	r.returns = r.returns[:0]
	r.lengths = r.lengths[:0]
}

// Store implements the checkpointer.Persistable interface
func (r *Returns) Store(path string) error {
	return checkpointer.StoreGob(path, r.episodes)
}

// Restore implements the checkpointer.Persistable interface
func (r *Returns) Restore(path string) error {
	var episodes int
	if err := checkpointer.RestoreGob(path, &episodes); err != nil {
		return err
	}
	r.episodes = episodes
	return nil
}
