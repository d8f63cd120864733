package ml

import "errors"

// VotingEnsemble soft-votes over its members: the class-1 probability is
// the unweighted mean of the member probabilities. Members are the
// tree-based candidates from the same training run.
type VotingEnsemble struct {
	Members []Classifier
	names   []string
}

// NewVotingEnsemble builds a soft-voting ensemble. Member order is
// preserved for serialization.
func NewVotingEnsemble(names []string, members []Classifier) (*VotingEnsemble, error) {
	if len(members) == 0 || len(members) != len(names) {
		return nil, errors.New("ml: voting ensemble needs at least one named member")
	}
	return &VotingEnsemble{Members: members, names: names}, nil
}

// PredictProba averages the members' probabilities.
func (v *VotingEnsemble) PredictProba(row []float64) ([2]float64, error) {
	var sum float64
	for _, m := range v.Members {
		p, err := m.PredictProba(row)
		if err != nil {
			return [2]float64{}, err
		}
		sum += p[1]
	}
	p1 := clampProb(sum / float64(len(v.Members)))
	return [2]float64{1 - p1, p1}, nil
}

// Family reports the mixed ensemble, which routes explanations through
// the model-agnostic explainer even when every member happens to be a
// tree ensemble.
func (v *VotingEnsemble) Family() Family { return FamilyVoting }

// MemberNames returns the serialization names of the members.
func (v *VotingEnsemble) MemberNames() []string {
	return append([]string(nil), v.names...)
}
