package extraction

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"brainextract/internal/models"
	"brainextract/pkg/config"
	"brainextract/pkg/erosion"
	"brainextract/pkg/evolution"
	"brainextract/pkg/mesh"
	"brainextract/pkg/surface"
)

// Params holds every tunable of the extraction
type Params struct {
	// JustEllipse stops after the initial ellipsoid; no evolution steps run
	JustEllipse bool

	// Iterations is the number of second phase evolution steps
	Iterations int

	// Depth is the number of samples taken along the inward normal in the
	// second phase; the first half of them feed the maximum intensity
	Depth int

	// ImageInfluence and Stiffness scale the image and curvature terms of
	// the second phase
	ImageInfluence float64
	Stiffness      float64

	// BrainSelection is subtracted from the normalized intensity ratio
	BrainSelection float64

	// SecondStageErosion erodes bright rims after the first fit and fits again
	SecondStageErosion bool

	// AboveMedian scales the median intensity into the erosion threshold
	AboveMedian float64

	// UseSphere skips the ellipsoid fit. CenterPoint optionally fixes the
	// sphere center in voxel coordinates.
	UseSphere   bool
	CenterPoint *r3.Vec

	// Subdivision is the number of octahedron subdivisions of the mesh
	Subdivision int

	// ReductionFactors shrink the fitted ellipsoid axes
	ReductionFactors [3]float64

	// Dilation is the surface dilation radius in voxels, 0 disables
	Dilation int

	// ExtractToMask leaves the input volume untouched and only fills
	// Result.Selection
	ExtractToMask bool

	// Verbose prints a progress bar when no callback is set
	Verbose bool

	// SaveIntermediaryResults writes the mask of every stage as a compressed
	// snapshot into IntermediaryDir
	SaveIntermediaryResults bool
	IntermediaryDir         string
}

// DefaultParams returns the default extraction parameters
func DefaultParams() *Params {
	b := models.DefaultPhaseB()
	return &Params{
		Iterations:       1500,
		Depth:            b.MaxDepth,
		ImageInfluence:   b.ImageFactor,
		Stiffness:        b.Stiffness,
		BrainSelection:   b.BrainSelection,
		AboveMedian:      erosion.DefaultAboveMedian,
		Subdivision:      mesh.DefaultLevel,
		ReductionFactors: surface.DefaultReductionFactors(),
	}
}

// Validate checks the parameters
func (p *Params) Validate() error {
	if p.Iterations < 0 {
		return fmt.Errorf("iterations must not be negative, got %d", p.Iterations)
	}
	if p.Depth < 1 {
		return fmt.Errorf("depth must be at least 1, got %d", p.Depth)
	}
	if p.Subdivision < 1 {
		return fmt.Errorf("subdivision must be at least 1, got %d", p.Subdivision)
	}
	if p.Dilation < 0 {
		return fmt.Errorf("dilation must not be negative, got %d", p.Dilation)
	}
	for i, f := range p.ReductionFactors {
		if !(f > 0) {
			return fmt.Errorf("reduction factor %d must be positive, got %g", i, f)
		}
	}
	if p.SecondStageErosion && !(p.AboveMedian > 0) {
		return fmt.Errorf("aboveMedian must be positive, got %g", p.AboveMedian)
	}
	if p.SaveIntermediaryResults && p.IntermediaryDir == "" {
		return fmt.Errorf("intermediary directory is required when saving intermediary results")
	}
	return nil
}

// plan returns the evolution phases for these parameters
func (p *Params) plan() evolution.Plan {
	plan := evolution.DefaultPlan()
	plan.Iterations = p.Iterations
	plan.PhaseB = models.EvolutionParams{
		MaxDepth:       p.Depth,
		HalfMaxDepth:   p.Depth / 2,
		RayDelta:       1.0,
		Stiffness:      p.Stiffness,
		ImageFactor:    p.ImageInfluence,
		BrainSelection: p.BrainSelection,
	}
	if p.JustEllipse {
		plan.PhaseAOuter = 0
		plan.Iterations = 0
	}
	return plan
}

// ParamsFromConfig maps the extraction and output sections of cfg onto Params
func ParamsFromConfig(cfg *config.Config) (*Params, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := cfg.Extraction
	p := &Params{
		JustEllipse:        e.JustEllipse,
		Iterations:         e.Iterations,
		Depth:              e.Depth,
		ImageInfluence:     e.ImageInfluence,
		Stiffness:          e.Stiffness,
		BrainSelection:     e.BrainSelection,
		SecondStageErosion: e.SecondStageErosion,
		AboveMedian:        e.AboveMedian,
		UseSphere:          e.UseSphere,
		Subdivision:        e.Subdivision,
		Dilation:           e.Dilation,
		ExtractToMask:      e.ExtractToMask,
		Verbose:            cfg.Output.Verbose,
	}
	copy(p.ReductionFactors[:], e.ReductionFactors)
	if len(e.CenterPoint) == 3 {
		p.CenterPoint = &r3.Vec{X: e.CenterPoint[0], Y: e.CenterPoint[1], Z: e.CenterPoint[2]}
	}
	if cfg.Output.IntermediaryDir != "" {
		p.SaveIntermediaryResults = true
		p.IntermediaryDir = cfg.Output.IntermediaryDir
	}
	return p, p.Validate()
}
