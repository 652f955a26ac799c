// Package extraction runs the complete brain extraction pipeline on a volume.
//
// The extraction process consists of several steps:
// 1. Remapping the volume onto [0,1023] and deriving the histogram thresholds
// 2. Fitting the initial ellipsoid (or sphere) to the bright tissue
// 3. Generating the surface mesh and measuring the median intensity inside it
// 4. Evolving the mesh onto the brain boundary in two phases
// 5. Voxelizing and filling the surface
// 6. Optionally eroding bright rims and repeating steps 1 to 5 on the eroded volume
// 7. Applying the mask to the volume
package extraction

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"brainextract/internal/models"
	"brainextract/pkg/config"
	"brainextract/pkg/erosion"
	"brainextract/pkg/evolution"
	"brainextract/pkg/histogram"
	"brainextract/pkg/mesh"
	"brainextract/pkg/stl"
	"brainextract/pkg/surface"
	"brainextract/pkg/volumeio"
	"brainextract/pkg/voxelize"
)

var log = config.NamedLogger("extraction")

// Result holds everything an extraction produces
type Result struct {
	// Mask marks the surface and interior voxels of the brain
	Mask *models.Mask

	// Selection is the binary mask filled in extract-to-mask mode
	Selection []byte

	// Mesh is the final surface in voxel coordinates
	Mesh *mesh.Mesh

	// Surface is the initial ellipsoid (or sphere)
	Surface models.SurfaceParams

	// Thresholds of the last fit, including its median intensity
	Thresholds models.Thresholds

	// VoxelCount is the number of brain voxels and Volume their physical
	// volume in mm³
	VoxelCount int
	Volume     float64

	// Eroded is set when the second stage erosion ran
	Eroded       bool
	ErosionStats erosion.Stats
}

// MeshTriangles converts the final surface into physical coordinates of v
func (r *Result) MeshTriangles(v *models.Volume) []stl.Triangle {
	return stl.FromMesh(r.Mesh, func(p r3.Vec) r3.Vec {
		return r3.Vec{
			X: v.Origin[0] + p.X*v.Resolution[0],
			Y: v.Origin[1] + p.Y*v.Resolution[1],
			Z: v.Origin[2] + p.Z*v.Resolution[2],
		}
	})
}

// Extractor runs the brain extraction pipeline
type Extractor struct {
	params           *Params
	progressCallback ProgressCallback
}

// NewExtractor creates a new extractor with the provided parameters
func NewExtractor(params *Params) *Extractor {
	return &Extractor{params: params}
}

// SetProgressCallback sets a callback function for evolution progress
func (e *Extractor) SetProgressCallback(callback ProgressCallback) {
	e.progressCallback = callback
}

func (e *Extractor) progress() ProgressCallback {
	if e.progressCallback != nil {
		return e.progressCallback
	}
	if e.params.Verbose {
		return newProgressBar().report
	}
	return nil
}

// stage is the outcome of one surface fit
type stage struct {
	surface    models.SurfaceParams
	thresholds models.Thresholds
	mesh       *mesh.Mesh
	mask       *models.Mask
}

// Process extracts the brain from v. Unless ExtractToMask is set, voxels
// outside the brain are set to the volume minimum in place. On cancellation
// the context error is returned wrapped and no result is produced.
func (e *Extractor) Process(ctx context.Context, v *models.Volume) (*Result, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	p := e.params
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	v.CalcMinMax()
	progress := e.progress()
	start := time.Now()

	log.Infof("Step 1: Fitting brain surface to %dx%dx%d volume...", v.Width, v.Height, v.Depth)
	first, err := e.fit(ctx, v, nil, progress)
	if err != nil {
		return nil, err
	}
	e.saveIntermediaryResult("01_first_pass", first.mask, v)

	res := &Result{
		Mask:       first.mask,
		Mesh:       first.mesh,
		Surface:    first.surface,
		Thresholds: first.thresholds,
	}

	target := v
	if p.SecondStageErosion {
		log.Info("Step 2: Eroding bright non-brain tissue...")
		eroded, stats := erosion.Erode(v, first.mask, first.thresholds.Median, p.AboveMedian)
		log.Infof("eroded %d voxels, cleaned %d (threshold %.2f)", stats.Eroded, stats.Cleaned, stats.Threshold)

		log.Info("Step 3: Fitting brain surface to eroded volume...")
		second, err := e.fit(ctx, eroded, &first.surface, progress)
		if err != nil {
			return nil, err
		}
		e.saveIntermediaryResult("02_second_pass", second.mask, eroded)

		res.Mask = second.mask
		res.Mesh = second.mesh
		res.Thresholds = second.thresholds
		res.Eroded = true
		res.ErosionStats = stats
		target = eroded
	}

	log.Info("Step 4: Applying brain mask...")
	if res.Eroded {
		masked := target.Clone()
		voxelize.Apply(masked, res.Mask)
		res.VoxelCount = erosion.InsideCount(masked)
		target = masked
	} else {
		res.VoxelCount = res.Mask.Count()
	}

	if p.ExtractToMask {
		res.Selection = voxelize.Extract(res.Mask)
	} else if res.Eroded {
		copy(v.Data, target.Data)
		v.CalcMinMax()
	} else {
		voxelize.Apply(v, res.Mask)
	}

	res.Volume = float64(res.VoxelCount) * v.VoxelVolume()
	log.Infof("brain volume: %d voxels, %.1f mm³ (%v)", res.VoxelCount, res.Volume, time.Since(start).Round(time.Millisecond))
	return res, nil
}

// fit runs histogram analysis, surface estimation, evolution and
// voxelization on v. A non-nil initial skips the surface estimation.
func (e *Extractor) fit(ctx context.Context, v *models.Volume, initial *models.SurfaceParams, progress ProgressCallback) (*stage, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("extraction cancelled: %w", err)
	}
	p := e.params

	img := histogram.Remap(v)
	th := histogram.Analyze(img)
	log.Infof("thresholds: %s", th)

	var sp models.SurfaceParams
	if initial != nil {
		sp = *initial
	} else {
		var err error
		sp, err = surface.Estimate(img, v, th, surface.Options{
			UseSphere:        p.UseSphere,
			ReductionFactors: p.ReductionFactors,
			Center:           p.CenterPoint,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to estimate initial surface: %w", err)
		}
	}
	log.Infof("initial surface: center=(%.1f, %.1f, %.1f) lengths=(%.1f, %.1f, %.1f) mm",
		sp.Center.X, sp.Center.Y, sp.Center.Z, sp.Lengths[0], sp.Lengths[1], sp.Lengths[2])

	m, err := mesh.Generate(p.Subdivision, sp, v.Resolution)
	if err != nil {
		return nil, fmt.Errorf("failed to generate mesh: %w", err)
	}
	nv, nt := m.Counts()
	log.Debugf("mesh: %d vertices, %d triangles, %d edges", nv, nt, m.EdgeCount())

	median, err := surface.MedianIntensity(img, v, th, sp)
	if errors.Is(err, models.ErrEmptySurface) {
		log.Warnf("%v, falling back to the global median", err)
		median, err = surface.GlobalMedian(img, th)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to estimate median intensity: %w", err)
	}
	th.Median = median
	log.Debugf("median intensity %.1f", median)

	engine, err := evolution.New(m, img, v.Dims(), th, median)
	if err != nil {
		return nil, err
	}
	err = engine.RunPhases(ctx, p.plan(), progress)
	engine.Close()
	if err != nil {
		return nil, fmt.Errorf("extraction cancelled: %w", err)
	}
	lo, hi := m.Bounds()
	c := m.Centroid()
	log.Debugf("evolved %d steps, mesh volume %.1f voxels, centroid (%.1f, %.1f, %.1f), bounds (%.1f, %.1f, %.1f)-(%.1f, %.1f, %.1f)",
		engine.Steps(), m.Volume(), c.X, c.Y, c.Z, lo.X, lo.Y, lo.Z, hi.X, hi.Y, hi.Z)

	mask, filled, err := voxelize.Fill(m, v.Dims(), p.Dilation)
	if err != nil {
		return nil, fmt.Errorf("failed to voxelize surface: %w", err)
	}
	log.Debugf("surface voxels %d, interior voxels %d", mask.CountValue(models.Surface), filled)

	return &stage{surface: sp, thresholds: th, mesh: m, mask: mask}, nil
}

// saveIntermediaryResult writes a mask snapshot when intermediary results are enabled
func (e *Extractor) saveIntermediaryResult(name string, mask *models.Mask, v *models.Volume) {
	if !e.params.SaveIntermediaryResults {
		return
	}
	path := filepath.Join(e.params.IntermediaryDir, name+".mask.zst")
	if err := volumeio.WriteMaskSnapshot(path, mask, volumeio.NewSnapshotHeader(mask, v)); err != nil {
		log.Warnf("failed to save intermediary result %s: %v", path, err)
	}
}
