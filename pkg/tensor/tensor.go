// Package tensor provides dense float32 tensors and the numeric primitives
// needed by the attention and feed-forward layers: batched matrix
// multiplication, broadcasting elementwise arithmetic, stabilized softmax,
// activations and dropout.
package tensor

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Tensor is a dense multi-dimensional array of float32 values stored as a
// flat slice with shape and precomputed strides.
type Tensor struct {
	Data    []float32
	Shape   []int
	Strides []int
}

// ShapeError reports a shape or dimension incompatibility between tensors,
// or between a tensor and the operation applied to it.
type ShapeError struct {
	Op     string
	Detail string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("tensor: %s: %s", e.Op, e.Detail)
}

func shapeErrorf(op, format string, args ...any) *ShapeError {
	return &ShapeError{Op: op, Detail: fmt.Sprintf(format, args...)}
}

func computeStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func copyShape(shape []int) []int {
	out := make([]int, len(shape))
	copy(out, shape)
	return out
}

func numElements(shape []int) int {
	n := 1
	for _, dim := range shape {
		n *= dim
	}
	return n
}

// NewTensor creates a tensor of the given shape, initialized to zeros.
func NewTensor(shape []int) *Tensor {
	return &Tensor{
		Data:    make([]float32, numElements(shape)),
		Shape:   copyShape(shape),
		Strides: computeStrides(shape),
	}
}

// FromSlice creates a tensor from existing data with the given shape.
// The data is copied so the tensor owns its memory.
func FromSlice(data []float32, shape []int) (*Tensor, error) {
	for _, dim := range shape {
		if dim < 0 {
			return nil, shapeErrorf("from-slice", "invalid dimension %d in shape %v", dim, shape)
		}
	}
	if want := numElements(shape); len(data) != want {
		return nil, shapeErrorf("from-slice", "data size %d does not match shape %v (expected %d elements)",
			len(data), shape, want)
	}

	dataCopy := make([]float32, len(data))
	copy(dataCopy, data)

	return &Tensor{
		Data:    dataCopy,
		Shape:   copyShape(shape),
		Strides: computeStrides(shape),
	}, nil
}

// Size returns the total number of elements.
func (t *Tensor) Size() int {
	return numElements(t.Shape)
}

// NumDims returns the rank of the tensor.
func (t *Tensor) NumDims() int {
	return len(t.Shape)
}

// FlatIndex converts multi-dimensional indices to a flat offset into Data.
func (t *Tensor) FlatIndex(indices []int) int {
	if len(indices) != len(t.Shape) {
		panic(fmt.Sprintf("indices length %d does not match rank %d", len(indices), len(t.Shape)))
	}
	idx := 0
	for i := range indices {
		if indices[i] < 0 || indices[i] >= t.Shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d with size %d",
				indices[i], i, t.Shape[i]))
		}
		idx += indices[i] * t.Strides[i]
	}
	return idx
}

// Get retrieves the value at the given indices.
func (t *Tensor) Get(indices []int) float32 {
	return t.Data[t.FlatIndex(indices)]
}

// Set stores a value at the given indices.
func (t *Tensor) Set(indices []int, value float32) {
	t.Data[t.FlatIndex(indices)] = value
}

// Clone creates a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	out := NewTensor(t.Shape)
	copy(out.Data, t.Data)
	return out
}

// View returns a tensor with a different shape sharing the same underlying
// data. The total element count must match.
func (t *Tensor) View(newShape []int) (*Tensor, error) {
	for _, dim := range newShape {
		if dim < 0 {
			return nil, shapeErrorf("view", "invalid dimension %d in shape %v", dim, newShape)
		}
	}
	if numElements(newShape) != len(t.Data) {
		return nil, shapeErrorf("view", "cannot view tensor of size %d as shape %v",
			len(t.Data), newShape)
	}
	return &Tensor{
		Data:    t.Data,
		Shape:   copyShape(newShape),
		Strides: computeStrides(newShape),
	}, nil
}

// Reshape is View that panics on size mismatch, for call sites where the new
// shape is computed from the old one and cannot disagree.
func (t *Tensor) Reshape(newShape []int) *Tensor {
	out, err := t.View(newShape)
	if err != nil {
		panic(err)
	}
	return out
}

// Transpose exchanges two dimensions, materializing the result.
func (t *Tensor) Transpose(dim1, dim2 int) (*Tensor, error) {
	if dim1 < 0 || dim1 >= len(t.Shape) || dim2 < 0 || dim2 >= len(t.Shape) {
		return nil, shapeErrorf("transpose", "invalid dimensions %d and %d for rank-%d tensor",
			dim1, dim2, len(t.Shape))
	}
	if dim1 == dim2 {
		return t.Clone(), nil
	}

	newShape := copyShape(t.Shape)
	newShape[dim1], newShape[dim2] = newShape[dim2], newShape[dim1]
	result := NewTensor(newShape)

	indices := make([]int, len(t.Shape))
	for src := 0; src < len(t.Data); src++ {
		rem := src
		for i := range t.Shape {
			indices[i] = rem / t.Strides[i]
			rem %= t.Strides[i]
		}
		indices[dim1], indices[dim2] = indices[dim2], indices[dim1]
		dst := 0
		for i := range indices {
			dst += indices[i] * result.Strides[i]
		}
		result.Data[dst] = t.Data[src]
	}
	return result, nil
}

// ShapeEquals reports whether two tensors have identical shapes.
func (t *Tensor) ShapeEquals(other *Tensor) bool {
	if len(t.Shape) != len(other.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != other.Shape[i] {
			return false
		}
	}
	return true
}

// Equals reports whether two tensors have the same shape and elementwise
// values within the given tolerance.
func (t *Tensor) Equals(other *Tensor, tolerance float32) bool {
	if !t.ShapeEquals(other) {
		return false
	}
	for i := range t.Data {
		if math.Abs(float64(t.Data[i]-other.Data[i])) > float64(tolerance) {
			return false
		}
	}
	return true
}

// sgemm multiplies the row-major (m, n) matrix a by the (n, p) matrix b into
// the (m, p) matrix c using single-precision BLAS. Zero-sized operands
// short-circuit: the product is the zero matrix c already holds, and BLAS
// rejects degenerate leading dimensions.
func sgemm(m, n, p int, a, b, c []float32) {
	if m == 0 || n == 0 || p == 0 {
		return
	}
	blas32.Gemm(blas.NoTrans, blas.NoTrans,
		1,
		blas32.General{Rows: m, Cols: n, Stride: n, Data: a},
		blas32.General{Rows: n, Cols: p, Stride: p, Data: b},
		0,
		blas32.General{Rows: m, Cols: p, Stride: p, Data: c},
	)
}

// Matmul performs matrix multiplication over the last two dimensions.
// For shapes (..., m, n) and (..., n, p) the result is (..., m, p).
// A 2D operand is broadcast against a 3D one. Contracted dimensions must
// agree; a *ShapeError is returned otherwise.
func Matmul(a, b *Tensor) (*Tensor, error) {
	if len(a.Shape) < 2 || len(b.Shape) < 2 {
		return nil, shapeErrorf("matmul", "requires at least 2D tensors, got %dD and %dD",
			len(a.Shape), len(b.Shape))
	}

	n := a.Shape[len(a.Shape)-1]
	if k := b.Shape[len(b.Shape)-2]; k != n {
		return nil, shapeErrorf("matmul", "incompatible shapes %v and %v (contracted dimensions %d and %d)",
			a.Shape, b.Shape, n, k)
	}

	switch {
	case len(a.Shape) == 3 && len(b.Shape) == 2:
		// (batch, m, n) @ (n, p) -> (batch, m, p)
		batch, m, p := a.Shape[0], a.Shape[1], b.Shape[1]
		result := NewTensor([]int{batch, m, p})
		for bi := 0; bi < batch; bi++ {
			sgemm(m, n, p,
				a.Data[bi*m*n:(bi+1)*m*n],
				b.Data,
				result.Data[bi*m*p:(bi+1)*m*p])
		}
		return result, nil

	case len(a.Shape) == 2 && len(b.Shape) == 3:
		// (m, n) @ (batch, n, p) -> (batch, m, p)
		m, batch, p := a.Shape[0], b.Shape[0], b.Shape[2]
		result := NewTensor([]int{batch, m, p})
		for bi := 0; bi < batch; bi++ {
			sgemm(m, n, p,
				a.Data,
				b.Data[bi*n*p:(bi+1)*n*p],
				result.Data[bi*m*p:(bi+1)*m*p])
		}
		return result, nil

	default:
		return matmulBatched(a, b)
	}
}

// matmulBatched multiplies tensors of equal rank, pairing leading batch
// dimensions one to one.
func matmulBatched(a, b *Tensor) (*Tensor, error) {
	if len(a.Shape) != len(b.Shape) {
		return nil, shapeErrorf("matmul", "rank mismatch between %v and %v", a.Shape, b.Shape)
	}

	m := a.Shape[len(a.Shape)-2]
	n := a.Shape[len(a.Shape)-1]
	p := b.Shape[len(b.Shape)-1]

	batchDims := a.Shape[:len(a.Shape)-2]
	for i, dim := range batchDims {
		if b.Shape[i] != dim {
			return nil, shapeErrorf("matmul", "batch dimension %d differs between %v and %v",
				i, a.Shape, b.Shape)
		}
	}
	batchSize := numElements(batchDims)

	resultShape := append(copyShape(batchDims), m, p)
	result := NewTensor(resultShape)

	for batch := 0; batch < batchSize; batch++ {
		sgemm(m, n, p,
			a.Data[batch*m*n:(batch+1)*m*n],
			b.Data[batch*n*p:(batch+1)*n*p],
			result.Data[batch*m*p:(batch+1)*m*p])
	}
	return result, nil
}

// Scale multiplies every element by a scalar, returning a new tensor.
func Scale(t *Tensor, scalar float32) *Tensor {
	result := NewTensor(t.Shape)
	for i := range t.Data {
		result.Data[i] = t.Data[i] * scalar
	}
	return result
}

// Scale is the method form of the package-level Scale.
func (t *Tensor) Scale(s float32) *Tensor {
	return Scale(t, s)
}

// Softmax applies a numerically stabilized softmax along the given dimension.
// The maximum of each slice is subtracted before exponentiating, so large
// scores do not overflow. Every output slice sums to 1.
func Softmax(t *Tensor, dim int) (*Tensor, error) {
	if dim < 0 || dim >= len(t.Shape) {
		return nil, shapeErrorf("softmax", "invalid dimension %d for rank-%d tensor", dim, len(t.Shape))
	}
	if dim != len(t.Shape)-1 {
		// Softmax over an inner dimension: move it to the back, apply,
		// and move the result back.
		last := len(t.Shape) - 1
		moved, err := t.Transpose(dim, last)
		if err != nil {
			return nil, err
		}
		soft, err := Softmax(moved, last)
		if err != nil {
			return nil, err
		}
		return soft.Transpose(dim, last)
	}

	sliceSize := t.Shape[dim]
	numSlices := len(t.Data) / sliceSize
	result := NewTensor(t.Shape)

	for s := 0; s < numSlices; s++ {
		offset := s * sliceSize
		row := t.Data[offset : offset+sliceSize]
		out := result.Data[offset : offset+sliceSize]

		maxVal := float32(math.Inf(-1))
		for _, v := range row {
			if v > maxVal {
				maxVal = v
			}
		}

		var sum float32
		for i, v := range row {
			e := float32(math.Exp(float64(v - maxVal)))
			out[i] = e
			sum += e
		}
		for i := range out {
			out[i] /= sum
		}
	}
	return result, nil
}

// SoftmaxLast applies softmax along the last dimension.
func SoftmaxLast(t *Tensor) *Tensor {
	result, err := Softmax(t, len(t.Shape)-1)
	if err != nil {
		panic(err)
	}
	return result
}

// Add performs elementwise addition with broadcasting, e.g. adding a
// (hidden,) bias vector to a (batch, seq, hidden) activation.
func Add(a, b *Tensor) (*Tensor, error) {
	return elementWiseOp("add", a, b, func(x, y float32) float32 { return x + y })
}

// Mul performs elementwise multiplication with broadcasting.
func Mul(a, b *Tensor) (*Tensor, error) {
	return elementWiseOp("mul", a, b, func(x, y float32) float32 { return x * y })
}

func elementWiseOp(op string, a, b *Tensor, f func(float32, float32) float32) (*Tensor, error) {
	outShape, err := broadcastShapes(a.Shape, b.Shape)
	if err != nil {
		return nil, shapeErrorf(op, "cannot broadcast shapes %v and %v: %v", a.Shape, b.Shape, err)
	}

	result := NewTensor(outShape)
	indices := make([]int, len(outShape))
	for flat := 0; flat < len(result.Data); flat++ {
		rem := flat
		for i := range outShape {
			indices[i] = rem / result.Strides[i]
			rem %= result.Strides[i]
		}
		result.Data[flat] = f(a.Data[broadcastIndex(indices, outShape, a)],
			b.Data[broadcastIndex(indices, outShape, b)])
	}
	return result, nil
}

func broadcastShapes(a, b []int) ([]int, error) {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	result := make([]int, maxLen)
	for i := 0; i < maxLen; i++ {
		dimA, dimB := 1, 1
		if i < len(a) {
			dimA = a[len(a)-1-i]
		}
		if i < len(b) {
			dimB = b[len(b)-1-i]
		}
		if dimA != dimB && dimA != 1 && dimB != 1 {
			return nil, fmt.Errorf("incompatible dimensions %d and %d", dimA, dimB)
		}
		if dimA > dimB {
			result[maxLen-1-i] = dimA
		} else {
			result[maxLen-1-i] = dimB
		}
	}
	return result, nil
}

// broadcastIndex maps an output position to the flat index of the (possibly
// lower-rank or size-1) input tensor it draws from.
func broadcastIndex(outIndices, outShape []int, in *Tensor) int {
	diff := len(outShape) - len(in.Shape)
	idx := 0
	for i := range in.Shape {
		pos := outIndices[i+diff]
		if in.Shape[i] == 1 {
			pos = 0
		}
		idx += pos * in.Strides[i]
	}
	return idx
}

// Concatenate joins tensors along the given dimension. All other dimensions
// must agree across the inputs, and the inputs are laid out in argument
// order, so the operation is deterministic.
func Concatenate(tensors []*Tensor, dim int) (*Tensor, error) {
	if len(tensors) == 0 {
		return nil, shapeErrorf("concat", "no tensors given")
	}
	rank := len(tensors[0].Shape)
	if dim < 0 || dim >= rank {
		return nil, shapeErrorf("concat", "invalid dimension %d for rank-%d tensor", dim, rank)
	}

	outShape := copyShape(tensors[0].Shape)
	concatSize := tensors[0].Shape[dim]
	for i := 1; i < len(tensors); i++ {
		tt := tensors[i]
		if len(tt.Shape) != rank {
			return nil, shapeErrorf("concat", "tensor %d has rank %d, expected %d", i, len(tt.Shape), rank)
		}
		for j := 0; j < rank; j++ {
			if j == dim {
				continue
			}
			if tt.Shape[j] != outShape[j] {
				return nil, shapeErrorf("concat", "tensor %d has shape %v, incompatible with %v at dimension %d",
					i, tt.Shape, outShape, j)
			}
		}
		concatSize += tt.Shape[dim]
	}
	outShape[dim] = concatSize

	result := NewTensor(outShape)

	// Copy row by row: outer iterates over everything before dim, a row is
	// the contiguous run of shape[dim]*stride(dim) elements at and after it.
	outerSize := 1
	for i := 0; i < dim; i++ {
		outerSize *= outShape[i]
	}
	innerSize := result.Strides[dim]

	dstRow := outShape[dim] * innerSize
	for outer := 0; outer < outerSize; outer++ {
		dstOffset := outer * dstRow
		for _, tt := range tensors {
			srcRow := tt.Shape[dim] * innerSize
			copy(result.Data[dstOffset:dstOffset+srcRow], tt.Data[outer*srcRow:(outer+1)*srcRow])
			dstOffset += srcRow
		}
	}
	return result, nil
}

// String renders the shape and a truncated view of the data.
func (t *Tensor) String() string {
	var sb strings.Builder
	sb.WriteString("Tensor[")
	for i, dim := range t.Shape {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%d", dim)
	}
	sb.WriteString("]: ")
	sb.WriteString(t.formatData(t.Shape, 0))
	return sb.String()
}

func (t *Tensor) formatData(shape []int, offset int) string {
	if len(shape) == 0 {
		return fmt.Sprintf("%g", t.Data[offset])
	}
	var sb strings.Builder
	sb.WriteString("[")
	if len(shape) == 1 {
		for i := 0; i < shape[0] && i < 6; i++ {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%g", t.Data[offset+i])
		}
		if shape[0] > 6 {
			sb.WriteString(", ...")
		}
	} else {
		subSize := numElements(shape[1:])
		for i := 0; i < shape[0] && i < 3; i++ {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(t.formatData(shape[1:], offset+i*subSize))
		}
		if shape[0] > 3 {
			sb.WriteString(", ...")
		}
	}
	sb.WriteString("]")
	return sb.String()
}
