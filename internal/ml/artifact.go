package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Artifact is the on-disk form of a trained model. The payload carries
// the model's full state so a loaded artifact scores identically to the
// in-memory model that produced it.
type Artifact struct {
	Name      string          `json:"name"`
	Family    Family          `json:"family"`
	Version   string          `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

// ErrArtifactNotFound reports a missing model file.
var ErrArtifactNotFound = errors.New("ml: model artifact not found")

type votingPayload struct {
	MemberNames []string          `json:"member_names"`
	Members     []json.RawMessage `json:"members"`
}

// NewArtifact wraps a classifier for persistence. The version is the
// wall-clock training timestamp.
func NewArtifact(name string, clf Classifier, now time.Time) (*Artifact, error) {
	payload, err := encodePayload(name, clf)
	if err != nil {
		return nil, err
	}
	return &Artifact{
		Name:      name,
		Family:    clf.Family(),
		Version:   now.UTC().Format("20060102-150405"),
		CreatedAt: now.UTC(),
		Payload:   payload,
	}, nil
}

func encodePayload(name string, clf Classifier) (json.RawMessage, error) {
	switch m := clf.(type) {
	case *RandomForest, *GradientBoosting, *MLP:
		return json.Marshal(m)
	case *VotingEnsemble:
		vp := votingPayload{MemberNames: m.MemberNames()}
		for i, member := range m.Members {
			raw, err := encodePayload(vp.MemberNames[i], member)
			if err != nil {
				return nil, err
			}
			vp.Members = append(vp.Members, raw)
		}
		return json.Marshal(vp)
	default:
		return nil, fmt.Errorf("ml: cannot serialize model %q", name)
	}
}

// Classifier reconstructs the model from the artifact payload.
func (a *Artifact) Classifier() (Classifier, error) {
	return decodePayload(a.Name, a.Payload)
}

func decodePayload(name string, payload json.RawMessage) (Classifier, error) {
	switch name {
	case NameRandomForest:
		var rf RandomForest
		if err := json.Unmarshal(payload, &rf); err != nil {
			return nil, fmt.Errorf("ml: decode %s: %w", name, err)
		}
		return &rf, nil
	case NameGradientBoosting:
		var gb GradientBoosting
		if err := json.Unmarshal(payload, &gb); err != nil {
			return nil, fmt.Errorf("ml: decode %s: %w", name, err)
		}
		return &gb, nil
	case NameNeuralNetwork:
		var m MLP
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("ml: decode %s: %w", name, err)
		}
		if m.Scaler == nil {
			return nil, errors.New("ml: neural network artifact is missing its scaler")
		}
		return &m, nil
	case NameEnsemble:
		var vp votingPayload
		if err := json.Unmarshal(payload, &vp); err != nil {
			return nil, fmt.Errorf("ml: decode %s: %w", name, err)
		}
		members := make([]Classifier, 0, len(vp.Members))
		for i, raw := range vp.Members {
			member, err := decodePayload(vp.MemberNames[i], raw)
			if err != nil {
				return nil, err
			}
			members = append(members, member)
		}
		return NewVotingEnsemble(vp.MemberNames, members)
	default:
		return nil, fmt.Errorf("ml: unknown model name %q", name)
	}
}

// ArtifactPath returns the per-candidate artifact location.
func ArtifactPath(dir, name string) string {
	return filepath.Join(dir, name+".json")
}

// CurrentPath returns the location of the active model.
func CurrentPath(dir string) string {
	return filepath.Join(dir, "current.json")
}

// ReportPath returns the location of the training comparison report.
func ReportPath(dir string) string {
	return filepath.Join(dir, "model_comparison.json")
}

// SaveArtifact writes the artifact atomically (temp file, then rename).
func SaveArtifact(a *Artifact, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ml: create model dir: %w", err)
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("ml: encode artifact %s: %w", a.Name, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadArtifact reads an artifact and reconstructs its classifier.
func LoadArtifact(path string) (*Artifact, Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
		}
		return nil, nil, err
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, nil, fmt.Errorf("ml: corrupt artifact %s: %w", path, err)
	}
	clf, err := a.Classifier()
	if err != nil {
		return nil, nil, err
	}
	return &a, clf, nil
}
