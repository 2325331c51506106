package sema

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// SimilarityMetric names a vector-pair similarity function.
type SimilarityMetric string

const (
	SimilarityCosine        SimilarityMetric = "cosine"
	SimilarityAngularCosine SimilarityMetric = "angular-cosine"
	SimilarityProduct       SimilarityMetric = "product"
	SimilarityManhattan     SimilarityMetric = "manhattan"
	SimilarityEuclidean     SimilarityMetric = "euclidean"
	SimilarityMinkowski     SimilarityMetric = "minkowski"
	SimilarityJaccard       SimilarityMetric = "jaccard"
)

// DistanceKernel names a vector-pair distance kernel.
type DistanceKernel string

const (
	KernelGaussian            DistanceKernel = "gaussian"
	KernelRBF                 DistanceKernel = "rbf"
	KernelLaplacian           DistanceKernel = "laplacian"
	KernelPolynomial          DistanceKernel = "polynomial"
	KernelSigmoid             DistanceKernel = "sigmoid"
	KernelLinear              DistanceKernel = "linear"
	KernelCauchy              DistanceKernel = "cauchy"
	KernelStudentT            DistanceKernel = "t-distribution"
	KernelInverseMultiquadric DistanceKernel = "inverse-multiquadric"
	KernelCosine              DistanceKernel = "cosine"
	KernelAngularCosine       DistanceKernel = "angular-cosine"
)

// MeasureOption tunes a similarity or distance computation.
type MeasureOption func(*measureConfig)

type measureConfig struct {
	eps        float64
	angular    float64
	order      float64
	gamma      float64
	bandwidths []float64
	degree     float64
	coef0      float64
	dof        float64
	normalize  func(float64) float64
}

func newMeasureConfig(opts []MeasureOption) measureConfig {
	cfg := measureConfig{
		eps:        1e-8,
		angular:    1,
		order:      3,
		bandwidths: []float64{1},
		degree:     3,
		coef0:      1,
		dof:        1,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithEps sets the division-by-zero guard.
func WithEps(eps float64) MeasureOption {
	return func(c *measureConfig) { c.eps = eps }
}

// WithAngularScale sets the angular-cosine scaling constant.
func WithAngularScale(scale float64) MeasureOption {
	return func(c *measureConfig) { c.angular = scale }
}

// WithMinkowskiOrder sets the Minkowski order p.
func WithMinkowskiOrder(p float64) MeasureOption {
	return func(c *measureConfig) { c.order = p }
}

// WithGamma sets the kernel coefficient. Zero means 1/dim.
func WithGamma(gamma float64) MeasureOption {
	return func(c *measureConfig) { c.gamma = gamma }
}

// WithBandwidths sets the Gaussian kernel bandwidth mixture.
func WithBandwidths(bandwidths ...float64) MeasureOption {
	return func(c *measureConfig) { c.bandwidths = bandwidths }
}

// WithDegree sets the polynomial kernel degree.
func WithDegree(degree float64) MeasureOption {
	return func(c *measureConfig) { c.degree = degree }
}

// WithCoef0 sets the polynomial/sigmoid/inverse-multiquadric offset.
func WithCoef0(coef0 float64) MeasureOption {
	return func(c *measureConfig) { c.coef0 = coef0 }
}

// WithDegreesOfFreedom sets the Student-t kernel degrees of freedom.
func WithDegreesOfFreedom(dof float64) MeasureOption {
	return func(c *measureConfig) { c.dof = dof }
}

// WithNormalization applies a post-hoc transform to the measured value.
func WithNormalization(fn func(float64) float64) MeasureOption {
	return func(c *measureConfig) { c.normalize = fn }
}

// SimilarityBy measures two equal-length vectors with the named metric.
func SimilarityBy(metric SimilarityMetric, a, b []float64, opts ...MeasureOption) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector lengths differ: %d vs %d", len(a), len(b))
	}
	cfg := newMeasureConfig(opts)

	var out float64
	switch metric {
	case SimilarityCosine:
		out = cosine(a, b, cfg.eps)
	case SimilarityAngularCosine:
		out = 1 - cfg.angular*math.Acos(clamp(cosine(a, b, cfg.eps), -1, 1))/math.Pi
	case SimilarityProduct:
		out = floats.Dot(a, b)
	case SimilarityManhattan:
		out = floats.Distance(a, b, 1)
	case SimilarityEuclidean:
		out = floats.Distance(a, b, 2)
	case SimilarityMinkowski:
		out = floats.Distance(a, b, cfg.order)
	case SimilarityJaccard:
		out = jaccard(a, b, cfg.eps)
	default:
		return 0, notImplemented("similarity metric", string(metric), similarityMetrics())
	}

	if cfg.normalize != nil {
		out = cfg.normalize(out)
	}
	return out, nil
}

// DistanceBy measures two equal-length vectors with the named kernel.
func DistanceBy(kernel DistanceKernel, a, b []float64, opts ...MeasureOption) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector lengths differ: %d vs %d", len(a), len(b))
	}
	cfg := newMeasureConfig(opts)
	gamma := cfg.gamma
	if gamma == 0 {
		gamma = 1 / float64(len(a))
	}

	var out float64
	switch kernel {
	case KernelGaussian:
		sq := sqDistance(a, b)
		for _, bw := range cfg.bandwidths {
			out += math.Exp(-sq / (2*bw*bw + cfg.eps))
		}
	case KernelRBF:
		out = math.Exp(-gamma * sqDistance(a, b))
	case KernelLaplacian:
		out = math.Exp(-gamma * floats.Distance(a, b, 1))
	case KernelPolynomial:
		out = math.Pow(gamma*floats.Dot(a, b)+cfg.coef0, cfg.degree)
	case KernelSigmoid:
		out = math.Tanh(gamma*floats.Dot(a, b) + cfg.coef0)
	case KernelLinear:
		out = floats.Dot(a, b)
	case KernelCauchy:
		out = 1 / (1 + gamma*sqDistance(a, b) + cfg.eps)
	case KernelStudentT:
		out = 1 / math.Pow(1+sqDistance(a, b)/cfg.dof, (cfg.dof+1)/2)
	case KernelInverseMultiquadric:
		out = 1 / math.Sqrt(sqDistance(a, b)+cfg.coef0*cfg.coef0+cfg.eps)
	case KernelCosine:
		out = 1 - cosine(a, b, cfg.eps)
	case KernelAngularCosine:
		out = math.Acos(clamp(cosine(a, b, cfg.eps), -1, 1)) / math.Pi
	default:
		return 0, notImplemented("distance kernel", string(kernel), distanceKernels())
	}

	if cfg.normalize != nil {
		out = cfg.normalize(out)
	}
	return out, nil
}

// FrechetDistance computes the squared Fréchet distance between two
// Gaussians given by their means and covariance matrices.
func FrechetDistance(mean1 []float64, cov1 *mat.SymDense, mean2 []float64, cov2 *mat.SymDense) (float64, error) {
	if len(mean1) != len(mean2) {
		return 0, fmt.Errorf("mean lengths differ: %d vs %d", len(mean1), len(mean2))
	}
	n := len(mean1)
	if cov1.SymmetricDim() != n || cov2.SymmetricDim() != n {
		return 0, fmt.Errorf("covariance dimensions do not match mean length %d", n)
	}

	diff := make([]float64, n)
	floats.SubTo(diff, mean1, mean2)
	meanTerm := floats.Dot(diff, diff)

	root1, err := sqrtSym(cov1)
	if err != nil {
		return 0, err
	}

	// tr(sqrt(C1 C2)) via the symmetric form sqrt(C1)^1/2 C2 sqrt(C1)^1/2.
	var inner, product mat.Dense
	inner.Mul(root1, cov2)
	product.Mul(&inner, root1)
	traceRoot, err := traceOfSqrt(&product)
	if err != nil {
		return 0, err
	}

	return meanTerm + mat.Trace(cov1) + mat.Trace(cov2) - 2*traceRoot, nil
}

// MMD computes the squared maximum mean discrepancy between two sample
// sets (one row per sample) under a Gaussian kernel mixture.
func MMD(x, y *mat.Dense, opts ...MeasureOption) (float64, error) {
	xr, xc := x.Dims()
	yr, yc := y.Dims()
	if xc != yc {
		return 0, fmt.Errorf("sample dimensions differ: %d vs %d", xc, yc)
	}
	if xr == 0 || yr == 0 {
		return 0, fmt.Errorf("empty sample set")
	}

	kxx, err := meanKernel(x, x, opts)
	if err != nil {
		return 0, err
	}
	kyy, err := meanKernel(y, y, opts)
	if err != nil {
		return 0, err
	}
	kxy, err := meanKernel(x, y, opts)
	if err != nil {
		return 0, err
	}
	return kxx + kyy - 2*kxy, nil
}

func meanKernel(x, y *mat.Dense, opts []MeasureOption) (float64, error) {
	xr, _ := x.Dims()
	yr, _ := y.Dims()
	var sum float64
	for i := 0; i < xr; i++ {
		for j := 0; j < yr; j++ {
			k, err := DistanceBy(KernelGaussian, x.RawRowView(i), y.RawRowView(j), opts...)
			if err != nil {
				return 0, err
			}
			sum += k
		}
	}
	return sum / float64(xr*yr), nil
}

func cosine(a, b []float64, eps float64) float64 {
	return floats.Dot(a, b) / (floats.Norm(a, 2)*floats.Norm(b, 2) + eps)
}

func jaccard(a, b []float64, eps float64) float64 {
	var minSum, maxSum float64
	for i := range a {
		minSum += math.Min(a[i], b[i])
		maxSum += math.Max(a[i], b[i])
	}
	return minSum / (maxSum + eps)
}

func sqDistance(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// sqrtSym computes the principal square root of a symmetric positive
// semi-definite matrix via its eigendecomposition. Small negative
// eigenvalues from floating point noise are clipped to zero.
func sqrtSym(s *mat.SymDense) (*mat.Dense, error) {
	var eig mat.EigenSym
	if !eig.Factorize(s, true) {
		return nil, fmt.Errorf("eigendecomposition failed")
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	n := len(values)
	scaled := mat.NewDense(n, n, nil)
	for j := 0; j < n; j++ {
		root := math.Sqrt(math.Max(values[j], 0))
		for i := 0; i < n; i++ {
			scaled.Set(i, j, vectors.At(i, j)*root)
		}
	}

	var out mat.Dense
	out.Mul(scaled, vectors.T())
	return &out, nil
}

// traceOfSqrt returns the trace of the square root of a (numerically)
// symmetric PSD matrix: the sum of the square roots of its eigenvalues.
func traceOfSqrt(m *mat.Dense) (float64, error) {
	n, c := m.Dims()
	if n != c {
		return 0, fmt.Errorf("matrix is not square")
	}
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, (m.At(i, j)+m.At(j, i))/2)
		}
	}
	var eig mat.EigenSym
	if !eig.Factorize(sym, false) {
		return 0, fmt.Errorf("eigendecomposition failed")
	}
	var trace float64
	for _, v := range eig.Values(nil) {
		trace += math.Sqrt(math.Max(v, 0))
	}
	return trace, nil
}

func similarityMetrics() []string {
	return []string{
		string(SimilarityCosine), string(SimilarityAngularCosine), string(SimilarityProduct),
		string(SimilarityManhattan), string(SimilarityEuclidean), string(SimilarityMinkowski),
		string(SimilarityJaccard),
	}
}

func distanceKernels() []string {
	return []string{
		string(KernelGaussian), string(KernelRBF), string(KernelLaplacian),
		string(KernelPolynomial), string(KernelSigmoid), string(KernelLinear),
		string(KernelCauchy), string(KernelStudentT), string(KernelInverseMultiquadric),
		string(KernelCosine), string(KernelAngularCosine),
	}
}

func notImplemented(kind, name string, available []string) error {
	sort.Strings(available)
	return fmt.Errorf("%s %q not implemented, available: %v", kind, name, available)
}
