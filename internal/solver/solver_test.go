package solver

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unbounded(n int) (lower, upper []float64) {
	lower = make([]float64, n)
	upper = make([]float64, n)
	for i := range lower {
		lower[i] = math.Inf(-1)
		upper[i] = math.Inf(1)
	}
	return lower, upper
}

func tightSettings() Settings {
	return Settings{DiffStep: 1e-7, FTol: 1e-14, XTol: 1e-14, GTol: 1e-14, MaxEvaluations: 1000}
}

func TestLeastSquaresExponentialFit(t *testing.T) {
	ts := make([]float64, 12)
	ys := make([]float64, 12)
	for i := range ts {
		ts[i] = float64(i) / 11
		ys[i] = 2 * math.Exp(-1.5*ts[i])
	}
	lower, upper := unbounded(2)

	res, err := LeastSquares(context.Background(), Problem{
		Residuals: func(_ context.Context, x []float64) ([]float64, error) {
			r := make([]float64, len(ts))
			for i := range ts {
				r[i] = ys[i] - x[0]*math.Exp(x[1]*ts[i])
			}
			return r, nil
		},
		X0:    []float64{1, 0},
		Lower: lower,
		Upper: upper,
	}, tightSettings())
	require.NoError(t, err)

	assert.InDelta(t, 2.0, res.X[0], 1e-5)
	assert.InDelta(t, -1.5, res.X[1], 1e-5)
	assert.Less(t, res.Cost, 1e-10)
	assert.True(t, res.Status.Converged(), "status %v", res.Status)
	assert.Greater(t, res.Evaluations, 3)
}

func TestLeastSquaresRespectsBounds(t *testing.T) {
	var seen []float64
	res, err := LeastSquares(context.Background(), Problem{
		Residuals: func(_ context.Context, x []float64) ([]float64, error) {
			seen = append(seen, x[0])
			return []float64{x[0] - 3, 0.5 * (x[0] - 3)}, nil
		},
		X0:    []float64{0},
		Lower: []float64{-1},
		Upper: []float64{2},
	}, DefaultSettings())
	require.NoError(t, err)

	assert.InDelta(t, 2.0, res.X[0], 1e-12)
	for _, x := range seen {
		assert.LessOrEqual(t, x, 2.0, "evaluated outside the box")
		assert.GreaterOrEqual(t, x, -1.0, "evaluated outside the box")
	}
}

func TestLeastSquaresProjectsStart(t *testing.T) {
	res, err := LeastSquares(context.Background(), Problem{
		Residuals: func(_ context.Context, x []float64) ([]float64, error) {
			return []float64{x[0] - 0.25}, nil
		},
		X0:    []float64{5},
		Lower: []float64{0},
		Upper: []float64{1},
	}, tightSettings())
	require.NoError(t, err)
	assert.InDelta(t, 0.25, res.X[0], 1e-9)
}

func TestLeastSquaresZeroResidualAtStart(t *testing.T) {
	calls := 0
	res, err := LeastSquares(context.Background(), Problem{
		Residuals: func(_ context.Context, x []float64) ([]float64, error) {
			calls++
			return []float64{0, 0}, nil
		},
		X0:    []float64{0},
		Lower: []float64{-1},
		Upper: []float64{1},
	}, DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, StatusZeroResidual, res.Status)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, res.Evaluations)
}

func TestLeastSquaresFixedCoordinate(t *testing.T) {
	var pinned []float64
	res, err := LeastSquares(context.Background(), Problem{
		Residuals: func(_ context.Context, x []float64) ([]float64, error) {
			pinned = append(pinned, x[1])
			return []float64{x[0] - 2, x[1] - 3, 0.1 * x[0] * x[1]}, nil
		},
		X0:    []float64{0, 5},
		Lower: []float64{-10, 5},
		Upper: []float64{10, 5},
	}, tightSettings())
	require.NoError(t, err)

	assert.Equal(t, 5.0, res.X[1])
	for i, v := range pinned {
		assert.Equal(t, 5.0, v, "evaluation %d left the box", i)
	}
	assert.Equal(t, len(pinned), res.Evaluations)
	// (x0-2) + 0.25*x0 = 0 with x1 held at 5
	assert.InDelta(t, 1.6, res.X[0], 1e-5)
}

func TestLeastSquaresEvaluationLimit(t *testing.T) {
	calls := 0
	lower, upper := unbounded(2)
	res, err := LeastSquares(context.Background(), Problem{
		Residuals: func(_ context.Context, x []float64) ([]float64, error) {
			calls++
			return []float64{10 * (x[1] - x[0]*x[0]), 1 - x[0]}, nil
		},
		X0:    []float64{-1.2, 1},
		Lower: lower,
		Upper: upper,
	}, Settings{DiffStep: 1e-6, FTol: 1e-15, XTol: 1e-15, GTol: 1e-15, MaxEvaluations: 7})
	require.NoError(t, err)
	assert.Equal(t, StatusMaxEvaluations, res.Status)
	assert.False(t, res.Status.Converged())
	assert.LessOrEqual(t, calls, 7)
	assert.Equal(t, calls, res.Evaluations)
}

func TestLeastSquaresResidualErrorAborts(t *testing.T) {
	boom := errors.New("simulator crashed")
	calls := 0
	_, err := LeastSquares(context.Background(), Problem{
		Residuals: func(_ context.Context, x []float64) ([]float64, error) {
			calls++
			if calls == 2 {
				return nil, boom
			}
			return []float64{x[0] - 1}, nil
		},
		X0:    []float64{0},
		Lower: []float64{-5},
		Upper: []float64{5},
	}, DefaultSettings())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls, "no retry after a failed evaluation")
}

func TestLeastSquaresNonFiniteResidual(t *testing.T) {
	_, err := LeastSquares(context.Background(), Problem{
		Residuals: func(_ context.Context, x []float64) ([]float64, error) {
			return []float64{math.NaN()}, nil
		},
		X0:    []float64{0},
		Lower: []float64{-1},
		Upper: []float64{1},
	}, DefaultSettings())
	assert.Error(t, err)
}

func TestLeastSquaresCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	_, err := LeastSquares(ctx, Problem{
		Residuals: func(_ context.Context, x []float64) ([]float64, error) {
			cancel()
			return []float64{x[0] - 1}, nil
		},
		X0:    []float64{0},
		Lower: []float64{-5},
		Upper: []float64{5},
	}, DefaultSettings())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLeastSquaresInvalidProblem(t *testing.T) {
	f := func(_ context.Context, x []float64) ([]float64, error) { return []float64{x[0]}, nil }
	tests := []struct {
		name string
		p    Problem
	}{
		{"no function", Problem{X0: []float64{0}, Lower: []float64{-1}, Upper: []float64{1}}},
		{"no parameters", Problem{Residuals: f}},
		{"bound length", Problem{Residuals: f, X0: []float64{0}, Lower: []float64{-1}}},
		{"inverted bounds", Problem{Residuals: f, X0: []float64{0}, Lower: []float64{1}, Upper: []float64{-1}}},
		{"nan start", Problem{Residuals: f, X0: []float64{math.NaN()}, Lower: []float64{-1}, Upper: []float64{1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LeastSquares(context.Background(), tt.p, DefaultSettings())
			assert.ErrorIs(t, err, ErrInvalidProblem)
		})
	}
}

func TestStatusString(t *testing.T) {
	for _, s := range []Status{StatusFTol, StatusXTol, StatusGTol, StatusZeroResidual, StatusMaxEvaluations} {
		assert.NotContains(t, s.String(), "Status(")
	}
	assert.Equal(t, "Status(0)", Status(0).String())
}
