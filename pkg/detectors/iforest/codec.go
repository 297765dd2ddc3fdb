package iforest

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/hed1ad/spendguard/pkg/detectors"
)

// formatVersion is bumped whenever the encoded layout changes.
const formatVersion = 1

// ErrCorruptArtifact is returned when a decoded ensemble fails validation.
var ErrCorruptArtifact = errors.New("corrupt ensemble artifact")

type header struct {
	Version int
}

// Encode writes e to w with encoding/gob. Thresholds and leaf counts are
// stored exactly, so a decoded ensemble scores bit-identically.
func Encode(w io.Writer, e *Ensemble) error {
	if e.Len() == 0 {
		return detectors.ErrModelNotReady
	}

	enc := gob.NewEncoder(w)
	if err := enc.Encode(header{Version: formatVersion}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	if err := enc.Encode(e); err != nil {
		return fmt.Errorf("encode ensemble: %w", err)
	}
	return nil
}

// Decode reads an ensemble written by Encode and validates its structure.
func Decode(r io.Reader) (*Ensemble, error) {
	dec := gob.NewDecoder(r)

	var h header
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	if h.Version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrCorruptArtifact, h.Version)
	}

	var e Ensemble
	if err := dec.Decode(&e); err != nil {
		return nil, fmt.Errorf("decode ensemble: %w", err)
	}
	if err := e.validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

// Marshal encodes the ensemble into a byte slice.
func Marshal(e *Ensemble) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes an ensemble from data.
func Unmarshal(data []byte) (*Ensemble, error) {
	return Decode(bytes.NewReader(data))
}

func (e *Ensemble) validate() error {
	if len(e.Trees) == 0 {
		return fmt.Errorf("%w: no trees", ErrCorruptArtifact)
	}
	if e.SubsampleSize < 2 {
		return fmt.Errorf("%w: subsample size %d", ErrCorruptArtifact, e.SubsampleSize)
	}
	if e.NumFeatures < 1 {
		return fmt.Errorf("%w: feature count %d", ErrCorruptArtifact, e.NumFeatures)
	}
	if e.HeightLimit < 1 {
		return fmt.Errorf("%w: height limit %d", ErrCorruptArtifact, e.HeightLimit)
	}
	// Anomaly scores live in (0, 1], so no other cutoff can separate them.
	if math.IsNaN(e.Threshold) || e.Threshold <= 0 || e.Threshold > 1 {
		return fmt.Errorf("%w: threshold %v", ErrCorruptArtifact, e.Threshold)
	}
	if math.IsNaN(e.Contamination) || e.Contamination < 0 || e.Contamination >= 0.5 {
		return fmt.Errorf("%w: contamination %v", ErrCorruptArtifact, e.Contamination)
	}
	for i, t := range e.Trees {
		if t == nil || t.Root == nil {
			return fmt.Errorf("%w: tree %d is empty", ErrCorruptArtifact, i)
		}
		if t.SubsampleSize < 2 {
			return fmt.Errorf("%w: tree %d subsample size %d", ErrCorruptArtifact, i, t.SubsampleSize)
		}
		if err := validateNode(t.Root, 0, e.HeightLimit, e.NumFeatures); err != nil {
			return fmt.Errorf("%w: tree %d: %v", ErrCorruptArtifact, i, err)
		}
	}
	return nil
}

func validateNode(n *Node, depth, heightLimit, nFeatures int) error {
	if depth > heightLimit {
		return fmt.Errorf("node at depth %d exceeds height limit %d", depth, heightLimit)
	}
	if n.IsLeaf() {
		if n.Size < 0 {
			return fmt.Errorf("negative leaf size %d", n.Size)
		}
		if n.Depth != depth {
			return fmt.Errorf("leaf records depth %d, found at %d", n.Depth, depth)
		}
		return nil
	}
	if n.Left == nil || n.Right == nil {
		return errors.New("internal node with a single child")
	}
	if n.Feature < 0 || n.Feature >= nFeatures {
		return fmt.Errorf("split feature %d out of range", n.Feature)
	}
	if math.IsNaN(n.Threshold) || math.IsInf(n.Threshold, 0) {
		return fmt.Errorf("split threshold %v is not finite", n.Threshold)
	}
	if err := validateNode(n.Left, depth+1, heightLimit, nFeatures); err != nil {
		return err
	}
	return validateNode(n.Right, depth+1, heightLimit, nFeatures)
}
