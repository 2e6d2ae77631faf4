package cluster

import (
	"math"
	"sort"

	"github.com/rkubicek/rawsidecar/internal/fingerprint"
	"github.com/rkubicek/rawsidecar/internal/scan"
)

// DefaultHammingThreshold splits sub-groups for 16-char hex hashes.
const DefaultHammingThreshold = 13

// Previewer resolves a camera file to a browse JPEG on disk.
type Previewer interface {
	Extract(path string) (string, error)
}

// Hasher computes a perceptual hash for a preview JPEG.
type Hasher interface {
	Hash(jpegPath string) (string, error)
}

// Refiner splits primary clusters into visually consistent sub-groups
// by perceptual-hash distance.
type Refiner struct {
	previews Previewer
	hasher   Hasher
}

// NewRefiner creates a Refiner over the given collaborators.
func NewRefiner(previews Previewer, hasher Hasher) *Refiner {
	return &Refiner{previews: previews, hasher: hasher}
}

// Refine splits one cluster. Members whose preview or hash fails stay
// in their sub-group but are excluded from distance computation; when
// every member fails the cluster passes through as a single flagged
// sub-group with similarity 0.
func (r *Refiner) Refine(c *PrimaryCluster, threshold int) []*SubGroup {
	if threshold <= 0 {
		threshold = DefaultHammingThreshold
	}

	members := membersInCaptureOrder(c)
	if len(members) == 1 {
		return []*SubGroup{{
			Cluster:        c,
			Members:        members,
			Representative: members[0],
			Similarity:     100,
		}}
	}

	hashes := make(map[string]string, len(members))
	for _, m := range members {
		jpeg, err := r.previews.Extract(m.Path)
		if err != nil {
			continue
		}
		h, err := r.hasher.Hash(jpeg)
		if err != nil {
			continue
		}
		hashes[m.Path] = h
	}

	if len(hashes) == 0 {
		return []*SubGroup{{
			Cluster:        c,
			Members:        members,
			Representative: c.Representative,
			Similarity:     0,
			HashFailed:     true,
		}}
	}

	// Greedy union: each unassigned member seeds a group and absorbs
	// every later unassigned member close enough to the seed.
	assigned := make(map[string]bool, len(members))
	var groups []*SubGroup
	var current *SubGroup

	for i, m := range members {
		if assigned[m.Path] {
			continue
		}
		seedHash, hashed := hashes[m.Path]
		if !hashed {
			// No hash to compare with: ride along with the open group
			// instead of fragmenting the cluster.
			if current != nil {
				current.Members = append(current.Members, m)
				assigned[m.Path] = true
				continue
			}
			current = &SubGroup{Cluster: c, Members: []*scan.BaseImage{m}, Representative: m}
			groups = append(groups, current)
			assigned[m.Path] = true
			continue
		}

		current = &SubGroup{Cluster: c, Members: []*scan.BaseImage{m}, Representative: m}
		groups = append(groups, current)
		assigned[m.Path] = true

		for _, other := range members[i+1:] {
			if assigned[other.Path] {
				continue
			}
			otherHash, ok := hashes[other.Path]
			if !ok {
				continue
			}
			if fingerprint.HammingHex(seedHash, otherHash) < threshold {
				current.Members = append(current.Members, other)
				assigned[other.Path] = true
			}
		}
	}

	for _, g := range groups {
		g.Similarity = similarityScore(g.Members, hashes)
	}
	return groups
}

// similarityScore maps the average pairwise Hamming distance of the
// hashed members onto 0-100. Groups without a comparable pair score 100.
func similarityScore(members []*scan.BaseImage, hashes map[string]string) int {
	var hashed []string
	for _, m := range members {
		if h, ok := hashes[m.Path]; ok {
			hashed = append(hashed, h)
		}
	}
	if len(hashed) < 2 {
		return 100
	}

	var total, pairs, bitLen int
	for i := 0; i < len(hashed); i++ {
		for j := i + 1; j < len(hashed); j++ {
			d := fingerprint.HammingHex(hashed[i], hashed[j])
			if d == fingerprint.InfiniteDistance {
				continue
			}
			total += d
			pairs++
			bitLen = fingerprint.BitLength(hashed[i])
		}
	}
	if pairs == 0 || bitLen == 0 {
		return 100
	}
	avg := float64(total) / float64(pairs)
	score := math.Round(100 - avg/float64(bitLen)*100)
	if score < 0 {
		return 0
	}
	return int(score)
}

// membersInCaptureOrder walks cluster members by capture instant,
// falling back to the cluster's stored order for untimed frames.
func membersInCaptureOrder(c *PrimaryCluster) []*scan.BaseImage {
	members := make([]*scan.BaseImage, len(c.Members))
	copy(members, c.Members)
	if c.Origin == OriginFilenamePattern {
		// Cinema clusters already sort by bracket segment.
		return members
	}
	sort.SliceStable(members, func(i, j int) bool {
		ti, tj := members[i].TakenAt, members[j].TakenAt
		switch {
		case ti == nil || tj == nil:
			return false
		case ti.Equal(*tj):
			return members[i].Path < members[j].Path
		default:
			return ti.Before(*tj)
		}
	})
	return members
}
