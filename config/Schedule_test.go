package config

import "testing"

func TestSchedule(t *testing.T) {
	s := Schedule{Intrinsic: true, RandomAct: 100, NoNormBinary: 50,
		NoNormReward: 200, NormReward: true}

	tests := []struct {
		frames                                    int
		exploring, counts, binary, reward, learns bool
	}{
		{0, true, false, false, false, false},
		{50, true, false, false, false, false},
		{51, true, false, true, false, false},
		{100, false, false, true, false, true},
		{101, false, true, true, false, true},
		{201, false, true, true, true, true},
	}
	for _, test := range tests {
		f := test.frames
		have := []bool{s.IsExploring(f), s.IsStackingCounts(f),
			s.IsNormalizingBinary(f), s.IsNormalizingReward(f),
			s.IsLearning(f)}
		want := []bool{test.exploring, test.counts, test.binary,
			test.reward, test.learns}
		for i := range want {
			if have[i] != want[i] {
				t.Errorf("frames %v: \n\twant(%v)\n\thave(%v)", f, want, have)
				break
			}
		}
	}
}

func TestScheduleExtrinsic(t *testing.T) {
	s := Schedule{RandomAct: 100, NoNormReward: 0}
	if s.IsExploring(0) || !s.IsLearning(0) {
		t.Errorf("extrinsic runs should learn from the first frame")
	}
	if s.IsNormalizingReward(1000) {
		t.Errorf("rewards normalized without norm_rew")
	}
}
