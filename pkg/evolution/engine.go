// Package evolution deforms the brain surface mesh toward the tissue boundary.
// Each step combines a tangential smoothing term, a curvature-driven normal
// term and an image-driven normal term sampled along the inward normal.
package evolution

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"brainextract/internal/models"
	"brainextract/pkg/config"
	"brainextract/pkg/mesh"
)

var log = config.NamedLogger("evolution")

// ErrClosed is returned when running an engine after Close
var ErrClosed = errors.New("evolution engine closed")

// flatCurvature is the curvature range below which the sigmoid is evaluated at its midpoint
const flatCurvature = 1e-12

// ProgressCallback is a function that reports progress during evolution
type ProgressCallback func(completed, total int, message string)

// Plan describes the two evolution phases
type Plan struct {
	// PhaseAOuter × PhaseAInner steps run with PhaseA
	PhaseAOuter int
	PhaseAInner int
	PhaseA      models.EvolutionParams

	// Iterations steps run with PhaseB
	Iterations int
	PhaseB     models.EvolutionParams
}

// DefaultPlan returns 8×100 stiff steps followed by 1500 looser ones
func DefaultPlan() Plan {
	return Plan{
		PhaseAOuter: 8,
		PhaseAInner: 100,
		PhaseA:      models.PhaseA(),
		Iterations:  1500,
		PhaseB:      models.DefaultPhaseB(),
	}
}

// Steps returns the total number of steps of the plan
func (p Plan) Steps() int {
	return p.PhaseAOuter*p.PhaseAInner + p.Iterations
}

// State is everything one evolution run reads and mutates
type State struct {
	Mesh       *mesh.Mesh
	Params     models.EvolutionParams
	Thresholds models.Thresholds
	Median     float64

	// MeanEdge is the mean edge length of the last step
	MeanEdge float64

	img   []int
	dims  [3]int
	upper r3.Vec

	normals []r3.Vec
	info    []mesh.VertexInfo
}

// Engine advances a State one time-step at a time
type Engine struct {
	state  *State
	steps  int
	closed bool
}

// New creates an engine evolving m over the remapped image img of extents
// dims. The mesh is updated in place.
func New(m *mesh.Mesh, img []int, dims [3]int, th models.Thresholds, median float64) (*Engine, error) {
	if m == nil || len(m.Vertices) == 0 {
		return nil, fmt.Errorf("evolution: %w", models.ErrEmptySurface)
	}
	if dims[0] < 2 || dims[1] < 2 || dims[2] < 2 || len(img) != dims[0]*dims[1]*dims[2] {
		return nil, fmt.Errorf("evolution: %w: image of %d voxels for extents %v", models.ErrInvalidVolume, len(img), dims)
	}
	return &Engine{
		state: &State{
			Mesh:       m,
			Params:     models.PhaseA(),
			Thresholds: th,
			Median:     median,
			img:        img,
			dims:       dims,
			upper:      r3.Vec{X: float64(dims[0] - 2), Y: float64(dims[1] - 2), Z: float64(dims[2] - 2)},
			normals:    make([]r3.Vec, len(m.Vertices)),
			info:       make([]mesh.VertexInfo, len(m.Vertices)),
		},
	}, nil
}

// State returns the engine state
func (e *Engine) State() *State {
	return e.state
}

// Steps returns the number of steps taken so far
func (e *Engine) Steps() int {
	return e.steps
}

// SetParams replaces the parameters used by subsequent steps
func (e *Engine) SetParams(p models.EvolutionParams) {
	e.state.Params = p
}

// Step performs one time-step of the surface evolution
func (e *Engine) Step() {
	s := e.state
	m := s.Mesh
	p := s.Params

	s.MeanEdge = m.MeanEdgeLength()
	s.normals = m.VertexNormals(s.normals)
	var minCurv, maxCurv float64
	s.info, minCurv, maxCurv = m.VertexInformation(s.normals, s.MeanEdge, s.info)
	midpoint, slope, flat := sigmoidParams(minCurv, maxCurv)

	for i, v := range m.Vertices {
		info := s.info[i]
		n := s.normals[i]

		update2 := 0.5 * p.Stiffness
		if !flat {
			update2 *= 1 + math.Tanh(slope*(info.Curvature-midpoint))
		}
		update3 := p.ImageFactor * s.imageRatio(v, n) * s.MeanEdge

		d := r3.Scale(0.5, info.TangentPart)
		d = r3.Add(d, r3.Scale(update2, info.NormalPart))
		d = r3.Add(d, r3.Scale(update3, n))
		m.Vertices[i] = s.clamp(r3.Add(v, d))
	}
	e.steps++
}

// sigmoidParams returns the center E and slope F of the curvature sigmoid.
// flat is set when the curvature range vanishes.
func sigmoidParams(minCurv, maxCurv float64) (e, f float64, flat bool) {
	e = 0.5 * (minCurv + maxCurv)
	span := maxCurv - minCurv
	if !(span > flatCurvature) {
		return e, 0, true
	}
	return e, 6 / span, false
}

// imageRatio samples the image from v inward along n and returns the
// normalized intensity ratio minus the brain selection term
func (s *State) imageRatio(v, n r3.Vec) float64 {
	p := s.Params
	lo := s.Median
	hi := float64(s.Thresholds.Back)
	for i := 0; i < p.MaxDepth; i++ {
		val := float64(s.sample(r3.Sub(v, r3.Scale(float64(i)*p.RayDelta, n))))
		if val < lo {
			lo = val
		}
		if i < p.HalfMaxDepth && val > hi {
			hi = val
		}
	}

	floor := float64(s.Thresholds.Min)
	if !(hi-floor > 0) {
		return -p.BrainSelection
	}
	return -p.BrainSelection + (lo-floor)/(hi-floor)
}

// sample returns the nearest-neighbor intensity at q, clamped to the grid
func (s *State) sample(q r3.Vec) int {
	x := clampIndex(q.X, s.dims[0])
	y := clampIndex(q.Y, s.dims[1])
	z := clampIndex(q.Z, s.dims[2])
	return s.img[x+s.dims[0]*(y+s.dims[1]*z)]
}

func clampIndex(c float64, n int) int {
	i := int(math.Round(c))
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func (s *State) clamp(q r3.Vec) r3.Vec {
	return r3.Vec{
		X: math.Max(0, math.Min(q.X, s.upper.X)),
		Y: math.Max(0, math.Min(q.Y, s.upper.Y)),
		Z: math.Max(0, math.Min(q.Z, s.upper.Z)),
	}
}

// Run performs n steps with the given parameters. The context is checked
// before every step; on cancellation its error is returned.
func (e *Engine) Run(ctx context.Context, params models.EvolutionParams, n int, progress ProgressCallback) error {
	return e.run(ctx, params, n, 0, n, "evolving surface", progress)
}

func (e *Engine) run(ctx context.Context, params models.EvolutionParams, n, done, total int, message string, progress ProgressCallback) error {
	if e.closed {
		return ErrClosed
	}
	e.SetParams(params)
	every := total / 100
	if every < 1 {
		every = 1
	}
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.Step()
		if progress != nil && ((done+i+1)%every == 0 || done+i+1 == total) {
			progress(done+i+1, total, message)
		}
	}
	return nil
}

// RunPhases runs the stiff first phase followed by the second phase
func (e *Engine) RunPhases(ctx context.Context, plan Plan, progress ProgressCallback) error {
	total := plan.Steps()
	done := 0

	start := time.Now()
	for outer := 0; outer < plan.PhaseAOuter; outer++ {
		msg := fmt.Sprintf("phase A %d/%d", outer+1, plan.PhaseAOuter)
		if err := e.run(ctx, plan.PhaseA, plan.PhaseAInner, done, total, msg, progress); err != nil {
			return err
		}
		done += plan.PhaseAInner
	}
	if plan.PhaseAOuter > 0 {
		log.Debugf("phase A: %d steps in %v, mean edge %.3f", plan.PhaseAOuter*plan.PhaseAInner, time.Since(start), e.state.MeanEdge)
	}

	start = time.Now()
	if err := e.run(ctx, plan.PhaseB, plan.Iterations, done, total, "phase B", progress); err != nil {
		return err
	}
	if plan.Iterations > 0 {
		log.Debugf("phase B: %d steps in %v, mean edge %.3f", plan.Iterations, time.Since(start), e.state.MeanEdge)
	}
	return nil
}

// Close drops the image reference and the per-vertex buffers. The mesh stays
// with its owner.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.closed = true
	s := e.state
	s.img = nil
	s.normals = nil
	s.info = nil
}
