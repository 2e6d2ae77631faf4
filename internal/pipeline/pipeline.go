// Package pipeline drives the ingest stages in order: scan, EXIF,
// folder keywords, clustering, hash refinement, similarity linking,
// group assembly, composition and sidecar fanout.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/rkubicek/rawsidecar/internal/catalog"
	"github.com/rkubicek/rawsidecar/internal/cluster"
	"github.com/rkubicek/rawsidecar/internal/config"
	"github.com/rkubicek/rawsidecar/internal/exifmeta"
	"github.com/rkubicek/rawsidecar/internal/groups"
	"github.com/rkubicek/rawsidecar/internal/keywords"
	"github.com/rkubicek/rawsidecar/internal/metadata"
	"github.com/rkubicek/rawsidecar/internal/scan"
	"github.com/rkubicek/rawsidecar/internal/sidecar"
	"github.com/rkubicek/rawsidecar/internal/similarity"
)

// MaxWorkers caps every worker pool in the run.
const MaxWorkers = 8

// Progress is one progress report from a stage boundary.
type Progress struct {
	Stage   string
	Percent int
	Message string
}

// ProgressSink receives progress reports. May be nil.
type ProgressSink func(Progress)

// Status is the run outcome.
type Status int

const (
	StatusComplete Status = iota
	StatusCancelled
)

func (s Status) String() string {
	if s == StatusCancelled {
		return "cancelled"
	}
	return "complete"
}

// MetadataSource reads EXIF metadata for a set of paths.
type MetadataSource interface {
	Read(ctx context.Context, paths []string, workers int) (map[string]exifmeta.Metadata, error)
}

// Linker connects sub-groups by representative similarity, returning
// the computed embeddings alongside the edges so the run can persist
// them.
type Linker interface {
	Link(ctx context.Context, groups []*cluster.SubGroup, thresholdPercent, workers int) ([]similarity.Edge, [][]float32, error)
}

// Composer builds the editorial record for one group.
type Composer interface {
	Compose(ctx context.Context, mc *metadata.Context) (*metadata.Record, error)
}

// Options are the run tunables.
type Options struct {
	Window              time.Duration
	HammingThreshold    int
	SimilarityEnabled   bool
	SimilarityThreshold int
	Workers             int
	DryRun              bool
}

func (o *Options) normalize() {
	if o.Window <= 0 {
		o.Window = cluster.DefaultWindow
	}
	if o.HammingThreshold <= 0 {
		o.HammingThreshold = cluster.DefaultHammingThreshold
	}
	if o.SimilarityThreshold <= 0 {
		o.SimilarityThreshold = similarity.DefaultThresholdPercent
	}
	if o.Workers <= 0 {
		o.Workers = min(runtime.NumCPU(), MaxWorkers)
	}
	if o.Workers > MaxWorkers {
		o.Workers = MaxWorkers
	}
}

// Deps are the pipeline's collaborators. Store and Progress may be nil.
type Deps struct {
	Exif     MetadataSource
	Previews cluster.Previewer
	Hasher   cluster.Hasher
	Linker   Linker
	Composer Composer
	Writer   sidecar.RecordWriter
	Store    *catalog.Store
	Rights   config.RightsConfig
	Progress ProgressSink
}

// GroupOutput pairs a super-group with its record and emit results.
type GroupOutput struct {
	Group   *groups.SuperGroup
	Record  *metadata.Record
	Emitted []sidecar.EmitResult
}

// Result is the (possibly partial) outcome of a run.
type Result struct {
	Status          Status
	Scan            *scan.ScanResult
	Clusters        []*cluster.PrimaryCluster
	SubGroups       []*cluster.SubGroup
	Groups          []GroupOutput
	SidecarsWritten int
	NeedsReview     int
	Warnings        []string
}

type Pipeline struct {
	deps Deps
	opts Options
}

func New(deps Deps, opts Options) *Pipeline {
	opts.normalize()
	return &Pipeline{deps: deps, opts: opts}
}

func (p *Pipeline) report(stage string, percent int, format string, args ...any) {
	if p.deps.Progress != nil {
		p.deps.Progress(Progress{Stage: stage, Percent: percent, Message: fmt.Sprintf(format, args...)})
	}
}

func (p *Pipeline) warn(res *Result, format string, args ...any) {
	res.Warnings = append(res.Warnings, fmt.Sprintf(format, args...))
}

// Run executes the full ingest over root. A scan failure is fatal;
// everything after degrades per component. Cancellation at any stage
// boundary returns the partial result with StatusCancelled.
func (p *Pipeline) Run(ctx context.Context, root string) (*Result, error) {
	res := &Result{Status: StatusComplete}

	var run *catalog.Run
	if p.deps.Store != nil {
		var err error
		if run, err = p.deps.Store.BeginRun(root); err != nil {
			p.warn(res, "catalog: %v", err)
			run = nil
		}
	}
	defer func() {
		if run != nil {
			if err := p.deps.Store.FinishRun(run.ID, len(res.scanBases()), res.SidecarsWritten, res.Status == StatusCancelled); err != nil {
				p.warn(res, "catalog: %v", err)
			}
		}
	}()

	// Stage 1: scan.
	scanRes, err := scan.NewScanner().Scan(root)
	if err != nil {
		return nil, err
	}
	res.Scan = scanRes
	p.report("scan", 100, "%d base images, %d derivatives", len(scanRes.Bases), scanRes.Counters.Derivatives)
	if len(scanRes.Bases) == 0 {
		return res, nil
	}
	if cancelled(ctx, res) {
		return res, nil
	}

	// Stage 2: EXIF metadata.
	paths := make([]string, len(scanRes.Bases))
	for i, b := range scanRes.Bases {
		paths[i] = b.Path
	}
	meta, err := p.deps.Exif.Read(ctx, paths, p.opts.Workers)
	if err != nil {
		if cancelled(ctx, res) {
			return res, nil
		}
		return nil, fmt.Errorf("reading metadata: %w", err)
	}
	for _, b := range scanRes.Bases {
		if m, ok := meta[b.Path]; ok && m.TakenAt != nil {
			b.TakenAt = m.TakenAt
		}
	}
	p.report("exif", 100, "metadata for %d files", len(meta))
	if cancelled(ctx, res) {
		return res, nil
	}

	// Stage 3: folder keywords, one derivation per directory.
	kwByDir := make(map[string][]string)
	for _, b := range scanRes.Bases {
		dir := filepath.Dir(b.Path)
		if _, ok := kwByDir[dir]; !ok {
			kwByDir[dir] = keywords.Derive(dir, root)
		}
	}
	p.report("keywords", 100, "%d directories", len(kwByDir))

	// Stage 4: primary clustering.
	res.Clusters = cluster.Primary(scanRes.Bases, p.opts.Window)
	p.report("cluster", 100, "%d primary clusters", len(res.Clusters))
	if cancelled(ctx, res) {
		return res, nil
	}

	// Stage 5: hash refinement, parallel across clusters.
	res.SubGroups = p.refine(ctx, res)
	p.report("refine", 100, "%d sub-groups", len(res.SubGroups))
	if cancelled(ctx, res) {
		return res, nil
	}

	// Stage 6: similarity linking. Degrades to zero edges when the
	// embedding service is unreachable.
	var edges []similarity.Edge
	var embeddings [][]float32
	if p.opts.SimilarityEnabled && p.deps.Linker != nil && len(res.SubGroups) >= 2 {
		edges, embeddings, err = p.deps.Linker.Link(ctx, res.SubGroups, p.opts.SimilarityThreshold, p.opts.Workers)
		if err != nil {
			if cancelled(ctx, res) {
				return res, nil
			}
			p.warn(res, "similarity degraded to zero edges: %v", err)
			p.report("similarity", 100, "unavailable, proceeding without links")
			edges, embeddings = nil, nil
		} else {
			p.report("similarity", 100, "%d edges", len(edges))
		}
	}

	// Stage 7: assembly.
	supers := groups.Assemble(res.SubGroups, edges)
	p.report("assemble", 100, "%d groups", len(supers))

	// Stage 8: composition, parallel across groups.
	res.Groups = p.compose(ctx, res, supers, scanRes, meta, kwByDir)
	if cancelled(ctx, res) {
		return res, nil
	}

	// Stage 9: sidecar fanout.
	if !p.opts.DryRun {
		fanout := sidecar.NewFanout(p.deps.Writer, p.opts.Workers)
		for i := range res.Groups {
			out := &res.Groups[i]
			out.Emitted = fanout.Emit(ctx, out.Group, out.Record, scanRes)
			for _, e := range out.Emitted {
				if e.Err != nil {
					p.warn(res, "sidecar %s: %v", e.SidecarPath, e.Err)
				} else {
					res.SidecarsWritten++
				}
			}
		}
	}
	p.report("emit", 100, "%d sidecars written", res.SidecarsWritten)

	p.saveCatalog(res, run, embeddings)
	if cancelled(ctx, res) {
		return res, nil
	}
	return res, nil
}

func (res *Result) scanBases() []*scan.BaseImage {
	if res.Scan == nil {
		return nil
	}
	return res.Scan.Bases
}

func cancelled(ctx context.Context, res *Result) bool {
	if ctx.Err() != nil {
		res.Status = StatusCancelled
		return true
	}
	return false
}

func (p *Pipeline) refine(ctx context.Context, res *Result) []*cluster.SubGroup {
	refiner := cluster.NewRefiner(p.deps.Previews, p.deps.Hasher)
	grouped := make([][]*cluster.SubGroup, len(res.Clusters))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, p.opts.Workers)
	for i, c := range res.Clusters {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(i int, c *cluster.PrimaryCluster) {
			defer wg.Done()
			defer func() { <-semaphore }()
			if ctx.Err() != nil {
				return
			}
			grouped[i] = refiner.Refine(c, p.opts.HammingThreshold)
		}(i, c)
	}
	wg.Wait()

	var out []*cluster.SubGroup
	for _, gs := range grouped {
		out = append(out, gs...)
	}
	return out
}

func (p *Pipeline) compose(ctx context.Context, res *Result, supers []*groups.SuperGroup, scanRes *scan.ScanResult, meta map[string]exifmeta.Metadata, kwByDir map[string][]string) []GroupOutput {
	outputs := make([]GroupOutput, len(supers))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var done int
	semaphore := make(chan struct{}, p.opts.Workers)

	for i, sg := range supers {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(i int, sg *groups.SuperGroup) {
			defer wg.Done()
			defer func() { <-semaphore }()

			out := GroupOutput{Group: sg}
			if ctx.Err() == nil {
				mc := p.composeContext(sg, meta, kwByDir)
				rec, err := p.deps.Composer.Compose(ctx, mc)
				if rec == nil {
					rec = &metadata.Record{NeedsReview: true}
				}
				if err != nil && !errors.Is(err, context.Canceled) {
					mu.Lock()
					p.warn(res, "compose %s: %v", sg.Main.Representative.Path, err)
					mu.Unlock()
				}
				p.applyRights(rec)
				out.Record = rec
			} else {
				out.Record = &metadata.Record{NeedsReview: true}
			}
			outputs[i] = out

			mu.Lock()
			done++
			current := done
			mu.Unlock()
			p.report("compose", current*100/len(supers), "%s", sg.Main.Representative.Path)
		}(i, sg)
	}
	wg.Wait()

	for _, out := range outputs {
		if out.Record != nil && out.Record.NeedsReview {
			res.NeedsReview++
		}
	}
	return outputs
}

// composeContext gathers the model inputs for one group: the main
// representative's preview, the keyword union over every member
// directory, and the representative's EXIF context.
func (p *Pipeline) composeContext(sg *groups.SuperGroup, meta map[string]exifmeta.Metadata, kwByDir map[string][]string) *metadata.Context {
	mc := &metadata.Context{}

	seen := make(map[string]bool)
	for _, sub := range sg.SubGroups() {
		for _, m := range sub.Members {
			dir := filepath.Dir(m.Path)
			if seen[dir] {
				continue
			}
			seen[dir] = true
			mc.FolderKeywords = append(mc.FolderKeywords, kwByDir[dir]...)
		}
	}

	rep := sg.Main.Representative
	if m, ok := meta[rep.Path]; ok {
		if m.Position != nil {
			mc.ExifGPS = &metadata.GPS{
				Latitude:  m.Position.Latitude,
				Longitude: m.Position.Longitude,
				Altitude:  m.Position.Altitude,
			}
		}
		mc.CameraMake = m.CameraMake
		mc.CameraModel = m.CameraModel
	}
	if rep.TakenAt != nil {
		mc.TakenAt = rep.TakenAt.Format(time.RFC3339)
	}

	if previewPath, err := p.deps.Previews.Extract(rep.Path); err == nil {
		if data, err := os.ReadFile(previewPath); err == nil {
			mc.PreviewData = data
		}
	}
	return mc
}

func (p *Pipeline) applyRights(rec *metadata.Record) {
	r := p.deps.Rights
	rec.Creator = r.Creator
	rec.Rights = r.Rights
	rec.UsageTerms = r.UsageTerms
	rec.CopyrightMarked = r.CopyrightMarked
	contact := metadata.Contact{
		Email:   r.ContactEmail,
		Website: r.ContactWebsite,
		Phone:   r.ContactPhone,
		Address: r.ContactAddress,
		City:    r.ContactCity,
		Region:  r.ContactRegion,
		Postal:  r.ContactPostal,
		Country: r.ContactCountry,
	}
	if contact != (metadata.Contact{}) {
		rec.Contact = &contact
	}
}

// saveCatalog persists the run's groups and embeddings. Catalog
// trouble never fails the run.
func (p *Pipeline) saveCatalog(res *Result, run *catalog.Run, embeddings [][]float32) {
	if p.deps.Store == nil || run == nil {
		return
	}

	for _, out := range res.Groups {
		if out.Record == nil {
			continue
		}
		g := &catalog.GroupRecord{
			RunID:       run.ID,
			MainPath:    out.Group.Main.Representative.Path,
			Connections: out.Group.Connections,
			Title:       out.Record.Title,
			Keywords:    out.Record.Keywords,
			Provider:    string(out.Record.Provider),
			Confidence:  out.Record.Confidence,
			NeedsReview: out.Record.NeedsReview,
		}
		if err := p.deps.Store.SaveGroup(g); err != nil {
			p.warn(res, "catalog: %v", err)
			return
		}
	}

	for i, sub := range res.SubGroups {
		if i >= len(embeddings) || embeddings[i] == nil {
			continue
		}
		e := &catalog.StoredEmbedding{
			Path:   sub.Representative.Path,
			RunID:  run.ID,
			Vector: embeddings[i],
		}
		if err := p.deps.Store.SaveEmbedding(e); err != nil {
			p.warn(res, "catalog: %v", err)
			return
		}
	}
}
