package cluster

import (
	"sort"
	"time"

	"github.com/rkubicek/rawsidecar/internal/scan"
)

// DefaultWindow is the capture-time span of one bracketed shot.
const DefaultWindow = 5 * time.Second

// Primary groups base images into shot clusters. Cinema frames cluster
// by clip key, everything else by capture time.
func Primary(bases []*scan.BaseImage, window time.Duration) []*PrimaryCluster {
	if window <= 0 {
		window = DefaultWindow
	}

	var cinema []*scan.BaseImage
	var timed []*scan.BaseImage
	for _, b := range bases {
		if b.IsCinema() {
			cinema = append(cinema, b)
		} else {
			timed = append(timed, b)
		}
	}

	clusters := clusterByClipKey(cinema)
	clusters = append(clusters, clusterByTimestamp(timed, window)...)

	// Canonical ordering: by start instant, clusters without one last,
	// ties by representative path.
	sort.SliceStable(clusters, func(i, j int) bool {
		si, sj := clusters[i].Start, clusters[j].Start
		switch {
		case si == nil && sj == nil:
			return clusters[i].Representative.Path < clusters[j].Representative.Path
		case si == nil:
			return false
		case sj == nil:
			return true
		case si.Equal(*sj):
			return clusters[i].Representative.Path < clusters[j].Representative.Path
		default:
			return si.Before(*sj)
		}
	})
	return clusters
}

// clusterByClipKey groups cinema frames deterministically from their
// filenames, independent of timestamp.
func clusterByClipKey(bases []*scan.BaseImage) []*PrimaryCluster {
	byClip := make(map[string][]*scan.BaseImage)
	var order []string
	for _, b := range bases {
		if _, ok := byClip[b.ClipKey]; !ok {
			order = append(order, b.ClipKey)
		}
		byClip[b.ClipKey] = append(byClip[b.ClipKey], b)
	}

	var clusters []*PrimaryCluster
	for _, key := range order {
		members := byClip[key]
		// Bracket steps sort S000, S001, ..., then the merged frame.
		sort.SliceStable(members, func(i, j int) bool {
			return cinemaSeqLess(members[i], members[j])
		})

		bracketed := false
		for _, m := range members {
			if m.Seq != "" {
				bracketed = true
				break
			}
		}

		c := &PrimaryCluster{
			Members: members,
			// The S000 frame is the baseline exposure.
			Representative: members[0],
			Origin:         OriginFilenamePattern,
			IsBracketed:    bracketed,
		}
		c.Start, c.End = captureBounds(members)
		clusters = append(clusters, c)
	}
	return clusters
}

// cinemaSeqLess orders bracket segments before the merged frame.
func cinemaSeqLess(a, b *scan.BaseImage) bool {
	switch {
	case a.Seq == "" && b.Seq == "":
		return a.Path < b.Path
	case a.Seq == "":
		return false
	case b.Seq == "":
		return true
	case a.Seq != b.Seq:
		return a.Seq < b.Seq
	default:
		return a.Path < b.Path
	}
}

// clusterByTimestamp runs a single-pass sliding window over capture
// instants. Images without a timestamp become singletons.
func clusterByTimestamp(bases []*scan.BaseImage, window time.Duration) []*PrimaryCluster {
	var timed []*scan.BaseImage
	var clusters []*PrimaryCluster

	for _, b := range bases {
		if b.TakenAt == nil {
			clusters = append(clusters, singleton(b))
		} else {
			timed = append(timed, b)
		}
	}

	sort.SliceStable(timed, func(i, j int) bool {
		if timed[i].TakenAt.Equal(*timed[j].TakenAt) {
			return timed[i].Path < timed[j].Path
		}
		return timed[i].TakenAt.Before(*timed[j].TakenAt)
	})

	var open []*scan.BaseImage
	flush := func() {
		if len(open) == 0 {
			return
		}
		c := &PrimaryCluster{
			Members:        open,
			Representative: open[len(open)/2],
			Origin:         OriginTimestamp,
			IsBracketed:    len(open) > 1,
		}
		c.Start, c.End = captureBounds(open)
		clusters = append(clusters, c)
		open = nil
	}

	for _, b := range timed {
		if len(open) > 0 && b.TakenAt.Sub(*open[0].TakenAt) > window {
			flush()
		}
		open = append(open, b)
	}
	flush()

	return clusters
}

func singleton(b *scan.BaseImage) *PrimaryCluster {
	c := &PrimaryCluster{
		Members:        []*scan.BaseImage{b},
		Representative: b,
		Origin:         OriginTimestamp,
	}
	c.Start, c.End = captureBounds(c.Members)
	return c
}

func captureBounds(members []*scan.BaseImage) (start, end *time.Time) {
	for _, m := range members {
		if m.TakenAt == nil {
			continue
		}
		if start == nil || m.TakenAt.Before(*start) {
			start = m.TakenAt
		}
		if end == nil || m.TakenAt.After(*end) {
			end = m.TakenAt
		}
	}
	return start, end
}
