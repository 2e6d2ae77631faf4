package cluster

import (
	"time"

	"github.com/rkubicek/rawsidecar/internal/scan"
)

// Origin says how a primary cluster was formed.
type Origin int

const (
	// OriginTimestamp groups frames captured within a sliding window.
	OriginTimestamp Origin = iota
	// OriginFilenamePattern groups cinema frames sharing a clip key.
	OriginFilenamePattern
)

func (o Origin) String() string {
	if o == OriginFilenamePattern {
		return "filename-pattern"
	}
	return "timestamp"
}

// PrimaryCluster is one logical shot: a bracketed exposure run or a
// cinema clip frame with its bracket steps.
type PrimaryCluster struct {
	Members        []*scan.BaseImage
	Representative *scan.BaseImage
	Origin         Origin
	// Start and End bound the members' capture instants; nil when no
	// member carries a timestamp.
	Start *time.Time
	End   *time.Time
	// IsBracketed is true for multi-frame timestamp clusters and for
	// cinema clusters whose stems carry an _S### segment, even when
	// only _S000 exists. That matches what the cameras emit.
	IsBracketed bool
}

// SubGroup is a visually consistent subset of a primary cluster after
// perceptual-hash refinement.
type SubGroup struct {
	// Cluster is the primary cluster this sub-group was refined from;
	// sidecar fanout uses it to reach bracketed siblings.
	Cluster        *PrimaryCluster
	Members        []*scan.BaseImage
	Representative *scan.BaseImage
	// Similarity is the average intra-group score, 0-100. Singletons
	// score 100.
	Similarity int
	// HashFailed is set when no member could be hashed and the cluster
	// passed through unrefined.
	HashFailed bool
}

// EarliestCapture returns the earliest member capture instant, or nil.
func (g *SubGroup) EarliestCapture() *time.Time {
	var earliest *time.Time
	for _, m := range g.Members {
		if m.TakenAt == nil {
			continue
		}
		if earliest == nil || m.TakenAt.Before(*earliest) {
			earliest = m.TakenAt
		}
	}
	return earliest
}
