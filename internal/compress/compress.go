// Package compress reduces per-model feature blocks before regressor
// construction, either passing them through unchanged or projecting them
// onto their leading principal components. Projections are fitted on the
// vertically stacked training runs only and then applied to train and test
// alike, so the held-out runs never influence the fitted basis.
package compress

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/encodelab/fmripipe/internal/ctxlog"
)

// Kind names a compression strategy. The set is closed; ParseKind rejects
// anything else at configuration time.
type Kind string

const (
	Identity Kind = "identity"
	PCA      Kind = "pca"
)

// ParseKind resolves a configuration string to a compression strategy. The
// empty string selects identity.
func ParseKind(name string) (Kind, error) {
	switch Kind(name) {
	case "", Identity:
		return Identity, nil
	case PCA:
		return PCA, nil
	}
	return "", fmt.Errorf("unknown compression %q (known: %s, %s)", name, Identity, PCA)
}

// ModelSpec describes one model's compression: its column block in the
// concatenated input matrix, the strategy, and for PCA the number of
// components to keep.
type ModelSpec struct {
	Name        string
	Columns     []int
	Kind        Kind
	NComponents int
}

func (m ModelSpec) outputWidth() int {
	if m.Kind == PCA {
		return m.NComponents
	}
	return len(m.Columns)
}

// Split carries the compressed per-run matrices partitioned into train and
// test folds.
type Split struct {
	Train []*mat.Dense
	Test  []*mat.Dense
}

// Compressor applies the per-model compression plan.
type Compressor struct {
	models       []ModelSpec
	totalColumns int
}

// New validates the plan: the column sets must partition the concatenated
// input range, and PCA models need a component count no wider than their
// block.
func New(models []ModelSpec) (*Compressor, error) {
	if len(models) == 0 {
		return nil, errors.New("compressor: at least one model is required")
	}
	total := 0
	normalized := make([]ModelSpec, len(models))
	for i, m := range models {
		if len(m.Columns) == 0 {
			return nil, fmt.Errorf("compressor: model %q has no columns", m.Name)
		}
		kind, err := ParseKind(string(m.Kind))
		if err != nil {
			return nil, fmt.Errorf("compressor: model %q: %w", m.Name, err)
		}
		m.Kind = kind
		if m.Kind == PCA {
			if m.NComponents < 1 {
				return nil, fmt.Errorf("compressor: model %q needs a positive component count", m.Name)
			}
			if m.NComponents > len(m.Columns) {
				return nil, fmt.Errorf("compressor: model %q keeps %d components of a %d-column block",
					m.Name, m.NComponents, len(m.Columns))
			}
		}
		total += len(m.Columns)
		normalized[i] = m
	}
	seen := make(map[int]string, total)
	for _, m := range models {
		for _, c := range m.Columns {
			if c < 0 || c >= total {
				return nil, fmt.Errorf("compressor: model %q column %d outside the concatenated range [0,%d)",
					m.Name, c, total)
			}
			if owner, dup := seen[c]; dup {
				return nil, fmt.Errorf("compressor: column %d claimed by both %q and %q", c, owner, m.Name)
			}
			seen[c] = m.Name
		}
	}
	return &Compressor{models: normalized, totalColumns: total}, nil
}

// OutputColumns reports the post-compression column partition, one
// contiguous block per model in model order. Downstream stages index the
// compressed matrix through this partition.
func (c *Compressor) OutputColumns() [][]int {
	out := make([][]int, len(c.models))
	next := 0
	for i, m := range c.models {
		width := m.outputWidth()
		cols := make([]int, width)
		for j := range cols {
			cols[j] = next + j
		}
		next += width
		out[i] = cols
	}
	return out
}

// Apply compresses every matrix, fitting each PCA on the stacked training
// blocks only, and concatenates the per-model outputs per run in model
// order.
func (c *Compressor) Apply(ctx context.Context, train, test []*mat.Dense) (Split, error) {
	if len(train) == 0 {
		return Split{}, errors.New("compressor: no training matrices to fit on")
	}
	matrices := make([]*mat.Dense, 0, len(train)+len(test))
	matrices = append(matrices, train...)
	matrices = append(matrices, test...)
	for k, m := range matrices {
		if _, cols := m.Dims(); cols != c.totalColumns {
			return Split{}, fmt.Errorf("compressor: matrix %d has %d columns, want %d", k, cols, c.totalColumns)
		}
	}

	// blocks[i][k] is model i's compressed slice of matrix k.
	blocks := make([][]*mat.Dense, len(c.models))
	for i, model := range c.models {
		slices := make([]*mat.Dense, len(matrices))
		for k, m := range matrices {
			s, err := sliceColumns(m, model.Columns)
			if err != nil {
				return Split{}, fmt.Errorf("compressor model %q: %w", model.Name, err)
			}
			slices[k] = s
		}

		switch model.Kind {
		case Identity:
			blocks[i] = slices
		case PCA:
			ctxlog.FromContext(ctx).Debug("fitting principal components",
				"model", model.Name, "columns", len(model.Columns), "components", model.NComponents)
			proj, err := fitPCA(slices[:len(train)], model.NComponents)
			if err != nil {
				return Split{}, fmt.Errorf("compressor model %q: %w", model.Name, err)
			}
			projected := make([]*mat.Dense, len(slices))
			for k, s := range slices {
				projected[k] = proj.transform(s)
			}
			blocks[i] = projected
		}
	}

	merged := make([]*mat.Dense, len(matrices))
	for k := range matrices {
		parts := make([]*mat.Dense, len(c.models))
		for i := range c.models {
			parts[i] = blocks[i][k]
		}
		m, err := hstack(parts)
		if err != nil {
			return Split{}, fmt.Errorf("compressor: concatenating matrix %d: %w", k, err)
		}
		merged[k] = m
	}
	return Split{Train: merged[:len(train)], Test: merged[len(train):]}, nil
}

// projection is a fitted principal-component basis: the training column
// means and the leading component vectors.
type projection struct {
	mean       []float64
	components *mat.Dense
}

// fitPCA fits the leading k principal components of the vertically stacked
// training matrices.
func fitPCA(train []*mat.Dense, k int) (*projection, error) {
	stacked, err := vstack(train)
	if err != nil {
		return nil, err
	}
	rows, cols := stacked.Dims()
	if rows < 2 {
		return nil, fmt.Errorf("pca: need at least 2 stacked rows, got %d", rows)
	}
	if k > min(rows, cols) {
		return nil, fmt.Errorf("pca: cannot keep %d components of a %dx%d block", k, rows, cols)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(stacked, nil); !ok {
		return nil, errors.New("pca: decomposition failed")
	}
	var vectors mat.Dense
	pc.VectorsTo(&vectors)

	mean := make([]float64, cols)
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, stacked)
		mean[j] = stat.Mean(col, nil)
	}

	leading, ok := vectors.Slice(0, cols, 0, k).(*mat.Dense)
	if !ok {
		return nil, errors.New("pca: slicing produced an unexpected matrix type")
	}
	return &projection{mean: mean, components: leading}, nil
}

// transform centers m with the training means and projects it onto the
// fitted components.
func (p *projection) transform(m *mat.Dense) *mat.Dense {
	rows, cols := m.Dims()
	centered := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			centered.Set(i, j, m.At(i, j)-p.mean[j])
		}
	}
	_, k := p.components.Dims()
	out := mat.NewDense(rows, k, nil)
	out.Mul(centered, p.components)
	return out
}

func sliceColumns(m *mat.Dense, columns []int) (*mat.Dense, error) {
	rows, cols := m.Dims()
	if rows == 0 {
		return nil, errors.New("matrix has no rows")
	}
	for _, c := range columns {
		if c < 0 || c >= cols {
			return nil, fmt.Errorf("column %d out of range for a %d-column matrix", c, cols)
		}
	}
	out := mat.NewDense(rows, len(columns), nil)
	buf := make([]float64, rows)
	for j, c := range columns {
		mat.Col(buf, c, m)
		out.SetCol(j, buf)
	}
	return out, nil
}

func hstack(parts []*mat.Dense) (*mat.Dense, error) {
	if len(parts) == 0 {
		return nil, errors.New("hstack: nothing to concatenate")
	}
	rows, _ := parts[0].Dims()
	total := 0
	for _, p := range parts {
		r, c := p.Dims()
		if r != rows {
			return nil, fmt.Errorf("hstack: row mismatch %d vs %d", r, rows)
		}
		total += c
	}
	out := mat.NewDense(rows, total, nil)
	offset := 0
	buf := make([]float64, rows)
	for _, p := range parts {
		_, c := p.Dims()
		for j := 0; j < c; j++ {
			mat.Col(buf, j, p)
			out.SetCol(offset+j, buf)
		}
		offset += c
	}
	return out, nil
}

func vstack(parts []*mat.Dense) (*mat.Dense, error) {
	if len(parts) == 0 {
		return nil, errors.New("vstack: nothing to stack")
	}
	_, cols := parts[0].Dims()
	total := 0
	for _, p := range parts {
		r, c := p.Dims()
		if c != cols {
			return nil, fmt.Errorf("vstack: column mismatch %d vs %d", c, cols)
		}
		total += r
	}
	out := mat.NewDense(total, cols, nil)
	offset := 0
	for _, p := range parts {
		r, _ := p.Dims()
		for i := 0; i < r; i++ {
			out.SetRow(offset+i, p.RawRowView(i))
		}
		offset += r
	}
	return out, nil
}
