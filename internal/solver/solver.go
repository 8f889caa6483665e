// Package solver implements a box-constrained nonlinear least-squares
// minimizer (projected Levenberg-Marquardt) for expensive residual
// functions.
package solver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/GoSim-25-26J-441/spice-tuner/pkg/utils"
)

// ResidualFunc evaluates the residual vector at x. It must not retain x.
type ResidualFunc func(ctx context.Context, x []float64) ([]float64, error)

// Problem is minimize 0.5*||f(x)||^2 subject to Lower <= x <= Upper
type Problem struct {
	Residuals ResidualFunc
	X0        []float64
	Lower     []float64
	Upper     []float64
}

// Settings controls step sizes and termination
type Settings struct {
	// DiffStep is the relative finite-difference step
	DiffStep float64
	// FTol stops when the accepted cost reduction is below FTol*cost
	FTol float64
	// XTol stops when the step norm is below XTol*(XTol+||x||)
	XTol float64
	// GTol stops when the projected gradient's max norm is below GTol
	GTol float64
	// MaxEvaluations bounds residual evaluations, 0 means unlimited
	MaxEvaluations int
}

// DefaultSettings returns the tolerances used when none are configured
func DefaultSettings() Settings {
	return Settings{
		DiffStep: 1e-5,
		FTol:     1e-5,
		XTol:     1e-8,
		GTol:     1e-8,
	}
}

// Status says why the solver stopped
type Status int

const (
	StatusFTol Status = iota + 1
	StatusXTol
	StatusGTol
	StatusZeroResidual
	StatusMaxEvaluations
)

func (s Status) String() string {
	switch s {
	case StatusFTol:
		return "ftol: cost reduction below tolerance"
	case StatusXTol:
		return "xtol: step size below tolerance"
	case StatusGTol:
		return "gtol: projected gradient below tolerance"
	case StatusZeroResidual:
		return "residuals are zero"
	case StatusMaxEvaluations:
		return "evaluation limit reached"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Converged is false only when the evaluation limit stopped the run
func (s Status) Converged() bool {
	return s != StatusMaxEvaluations
}

// Result is the final iterate. X is the last accepted point.
type Result struct {
	X           []float64
	Residuals   []float64
	Cost        float64
	Evaluations int
	Iterations  int
	Status      Status
}

var (
	ErrInvalidProblem = errors.New("invalid least-squares problem")
	errBudget         = errors.New("evaluation budget exhausted")
)

// LeastSquares minimizes the problem from X0 projected into the box. The
// Jacobian is approximated one column at a time with forward differences,
// switching to backward differences where a forward step would leave the
// box. Any residual error aborts the run.
func LeastSquares(ctx context.Context, p Problem, s Settings) (*Result, error) {
	n := len(p.X0)
	if err := p.validate(); err != nil {
		return nil, err
	}
	if s.DiffStep <= 0 {
		s.DiffStep = DefaultSettings().DiffStep
	}

	st := &state{ctx: ctx, p: p, s: s}
	x := make([]float64, n)
	st.project(x, p.X0)

	r, err := st.eval(x)
	if err != nil {
		return nil, err
	}
	cost := halfSquaredNorm(r)
	m := len(r)
	if m == 0 {
		return nil, fmt.Errorf("%w: residual vector is empty", ErrInvalidProblem)
	}

	result := func(status Status) *Result {
		return &Result{
			X:           append([]float64(nil), x...),
			Residuals:   append([]float64(nil), r...),
			Cost:        cost,
			Evaluations: st.nfev,
			Iterations:  st.iterations,
			Status:      status,
		}
	}

	jac := mat.NewDense(m, n, nil)
	var (
		jtj    = mat.NewSymDense(n, nil)
		grad   = mat.NewVecDense(n, nil)
		lambda = -1.0
		nu     = 2.0
		fresh  = true
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if cost == 0 {
			return result(StatusZeroResidual), nil
		}

		if fresh {
			if err := st.jacobian(jac, x, r); err != nil {
				if errors.Is(err, errBudget) {
					return result(StatusMaxEvaluations), nil
				}
				return nil, err
			}
			jtj.SymOuterK(1, jac.T())
			grad.MulVec(jac.T(), mat.NewVecDense(m, r))

			if projectedGradientNorm(x, grad.RawVector().Data, p.Lower, p.Upper) < s.GTol {
				return result(StatusGTol), nil
			}
			if lambda < 0 {
				lambda = 1e-3 * maxDiag(jtj)
				if lambda == 0 {
					lambda = 1e-3
				}
			}
			fresh = false
		}

		step, err := solveDamped(jtj, grad, lambda)
		if err != nil {
			lambda *= nu
			nu *= 2
			if math.IsInf(lambda, 0) {
				return nil, fmt.Errorf("damped normal equations stayed singular: %w", err)
			}
			continue
		}

		xNew := make([]float64, n)
		floats.AddTo(xNew, x, step)
		st.project(xNew, xNew)
		actual := make([]float64, n)
		floats.SubTo(actual, xNew, x)
		stepNorm := floats.Norm(actual, 2)

		if stepNorm <= s.XTol*(s.XTol+floats.Norm(x, 2)) {
			return result(StatusXTol), nil
		}

		if s.MaxEvaluations > 0 && st.nfev >= s.MaxEvaluations {
			return result(StatusMaxEvaluations), nil
		}
		rNew, err := st.eval(xNew)
		if err != nil {
			return nil, err
		}
		costNew := halfSquaredNorm(rNew)
		predicted := predictedReduction(jtj, grad, actual)
		st.iterations++

		if costNew < cost && predicted > 0 {
			rho := (cost - costNew) / predicted
			reduction := cost - costNew
			prevCost := cost
			x, r, cost = xNew, rNew, costNew

			if reduction < s.FTol*prevCost {
				return result(StatusFTol), nil
			}
			lambda *= math.Max(1.0/3, 1-math.Pow(2*rho-1, 3))
			nu = 2
			fresh = true
			continue
		}

		lambda *= nu
		nu *= 2
	}
}

func (p Problem) validate() error {
	n := len(p.X0)
	switch {
	case p.Residuals == nil:
		return fmt.Errorf("%w: no residual function", ErrInvalidProblem)
	case n == 0:
		return fmt.Errorf("%w: no parameters", ErrInvalidProblem)
	case len(p.Lower) != n || len(p.Upper) != n:
		return fmt.Errorf("%w: %d parameters but %d lower and %d upper bounds", ErrInvalidProblem, n, len(p.Lower), len(p.Upper))
	}
	for i := range p.X0 {
		if math.IsNaN(p.X0[i]) || math.IsNaN(p.Lower[i]) || math.IsNaN(p.Upper[i]) {
			return fmt.Errorf("%w: parameter %d is NaN", ErrInvalidProblem, i)
		}
		if p.Lower[i] > p.Upper[i] {
			return fmt.Errorf("%w: parameter %d has lower bound %g above upper bound %g", ErrInvalidProblem, i, p.Lower[i], p.Upper[i])
		}
	}
	return nil
}

// state carries the evaluation counter and the first residual error
type state struct {
	ctx        context.Context
	p          Problem
	s          Settings
	nfev       int
	iterations int
}

func (st *state) eval(x []float64) ([]float64, error) {
	st.nfev++
	r, err := st.p.Residuals(st.ctx, append([]float64(nil), x...))
	if err != nil {
		return nil, err
	}
	for i, v := range r {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("residual %d is not finite at evaluation %d", i, st.nfev)
		}
	}
	return r, nil
}

func (st *state) project(dst, x []float64) {
	for i := range x {
		dst[i] = utils.ClampFloat64(x[i], st.p.Lower[i], st.p.Upper[i])
	}
}

// jacobian fills jac column by column, reusing r as the origin value.
// Coordinates pinned by equal bounds get a zero column and no evaluation.
func (st *state) jacobian(jac *mat.Dense, x, r []float64) error {
	m, n := jac.Dims()
	free := 0
	for j := 0; j < n; j++ {
		if st.p.Lower[j] < st.p.Upper[j] {
			free++
		}
	}
	if st.s.MaxEvaluations > 0 && st.nfev+free > st.s.MaxEvaluations {
		return errBudget
	}

	col := mat.NewDense(m, 1, nil)
	zero := make([]float64, m)
	point := make([]float64, n)
	for j := 0; j < n; j++ {
		if st.p.Lower[j] == st.p.Upper[j] {
			jac.SetCol(j, zero)
			continue
		}
		h := st.s.DiffStep * math.Max(1, math.Abs(x[j]))
		formula := fd.Forward
		if x[j]+h > st.p.Upper[j] {
			formula = fd.Backward
		}

		var evalErr error
		f := func(y, t []float64) {
			if evalErr != nil {
				return
			}
			copy(point, x)
			point[j] = x[j] + t[0]
			v, err := st.eval(point)
			if err != nil {
				evalErr = err
				return
			}
			if len(v) != m {
				evalErr = fmt.Errorf("residual length changed from %d to %d", m, len(v))
				return
			}
			copy(y, v)
		}
		fd.Jacobian(col, f, []float64{0}, &fd.JacobianSettings{
			Formula:     formula,
			OriginValue: r,
			Step:        h,
		})
		if evalErr != nil {
			return evalErr
		}
		jac.SetCol(j, mat.Col(nil, 0, col))
	}
	return nil
}

// solveDamped solves (JtJ + lambda*D) step = -grad where D is diag(JtJ)
// with zero entries replaced by one
func solveDamped(jtj *mat.SymDense, grad *mat.VecDense, lambda float64) ([]float64, error) {
	n := jtj.SymmetricDim()
	damped := mat.NewSymDense(n, nil)
	damped.CopySym(jtj)
	for i := 0; i < n; i++ {
		d := jtj.At(i, i)
		if d == 0 {
			d = 1
		}
		damped.SetSym(i, i, jtj.At(i, i)+lambda*d)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(damped); !ok {
		return nil, errors.New("matrix is not positive definite")
	}
	rhs := mat.NewVecDense(n, nil)
	rhs.ScaleVec(-1, grad)
	var step mat.VecDense
	if err := chol.SolveVecTo(&step, rhs); err != nil {
		return nil, err
	}
	return step.RawVector().Data, nil
}

// predictedReduction is the decrease of the quadratic model for step d
func predictedReduction(jtj *mat.SymDense, grad *mat.VecDense, d []float64) float64 {
	dv := mat.NewVecDense(len(d), d)
	return -(mat.Dot(grad, dv) + 0.5*mat.Inner(dv, jtj, dv))
}

func projectedGradientNorm(x, g, lower, upper []float64) float64 {
	norm := 0.0
	for i := range x {
		moved := utils.ClampFloat64(x[i]-g[i], lower[i], upper[i])
		norm = math.Max(norm, math.Abs(x[i]-moved))
	}
	return norm
}

func maxDiag(a *mat.SymDense) float64 {
	max := 0.0
	for i := 0; i < a.SymmetricDim(); i++ {
		max = math.Max(max, a.At(i, i))
	}
	return max
}

func halfSquaredNorm(r []float64) float64 {
	return 0.5 * floats.Dot(r, r)
}
