package bigint

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"njvm/heap"
)

// fakeAllocator backs NewInteger with a plain heap, mirroring the role the
// VM plays in production without pulling in the vm package.
type fakeAllocator struct {
	h *heap.Heap
}

func newFakeAllocator(t *testing.T) *fakeAllocator {
	t.Helper()
	return &fakeAllocator{h: heap.New(heap.Config{HeapKB: 64})}
}

func (a *fakeAllocator) NewInteger(byteCount int) (heap.Ref, error) {
	return a.h.Alloc(byteCount, false, func() {})
}

func (a *fakeAllocator) Payload(r heap.Ref) []byte {
	return a.h.Payload(r)
}

func TestFromInt64RoundTrips(t *testing.T) {
	a := newFakeAllocator(t)

	for _, v := range []int64{0, 1, -1, 127, -128, 1 << 20, -(1 << 20)} {
		ref, err := FromInt64(a, v)
		require.NoError(t, err)
		require.Equal(t, int32(v), ToInt32(a, ref))
	}
}

func TestAddSubMul(t *testing.T) {
	a := newFakeAllocator(t)

	x, err := FromInt64(a, 7)
	require.NoError(t, err)
	y, err := FromInt64(a, 5)
	require.NoError(t, err)

	sum, err := Add(a, x, y)
	require.NoError(t, err)
	require.Equal(t, int32(12), ToInt32(a, sum))

	diff, err := Sub(a, x, y)
	require.NoError(t, err)
	require.Equal(t, int32(2), ToInt32(a, diff))

	prod, err := Mul(a, x, y)
	require.NoError(t, err)
	require.Equal(t, int32(35), ToInt32(a, prod))
}

func TestDivModTruncatesTowardZero(t *testing.T) {
	a := newFakeAllocator(t)

	x, err := FromInt64(a, -7)
	require.NoError(t, err)
	y, err := FromInt64(a, 2)
	require.NoError(t, err)

	var q heap.Ref
	r, err := DivMod(a, x, y, func(ref heap.Ref) { q = ref })
	require.NoError(t, err)
	require.Equal(t, int32(-3), ToInt32(a, q))
	require.Equal(t, int32(-1), ToInt32(a, r))
}

func TestDivModByZeroFails(t *testing.T) {
	a := newFakeAllocator(t)

	x, err := FromInt64(a, 1)
	require.NoError(t, err)
	zero, err := FromInt64(a, 0)
	require.NoError(t, err)

	_, err = DivMod(a, x, zero, func(heap.Ref) {})
	require.Error(t, err)
}

func TestDivModRootsQuotientBeforeAllocatingRemainder(t *testing.T) {
	a := newFakeAllocator(t)

	x, err := FromInt64(a, 7)
	require.NoError(t, err)
	y, err := FromInt64(a, 2)
	require.NoError(t, err)

	var rooted heap.Ref
	allocationsAtRoot := -1
	r, err := DivMod(a, x, y, func(q heap.Ref) {
		rooted = q
		allocationsAtRoot = a.h.Allocations()
	})
	require.NoError(t, err)
	require.False(t, rooted.IsNil(), "rootQuotient must be called with a real reference")
	require.Equal(t, allocationsAtRoot+1, a.h.Allocations(), "only the remainder may be allocated after the quotient is rooted")
	require.Equal(t, int32(3), ToInt32(a, rooted))
	require.Equal(t, int32(1), ToInt32(a, r))
}

func TestCmp(t *testing.T) {
	a := newFakeAllocator(t)

	small, err := FromInt64(a, 2)
	require.NoError(t, err)
	big, err := FromInt64(a, 9)
	require.NoError(t, err)

	require.Negative(t, Cmp(a, small, big))
	require.Positive(t, Cmp(a, big, small))
	require.Zero(t, Cmp(a, small, small))
}

func TestMultiplyBeyondInt64Magnitude(t *testing.T) {
	a := newFakeAllocator(t)

	one, err := FromInt64(a, 1)
	require.NoError(t, err)
	two, err := FromInt64(a, 2)
	require.NoError(t, err)

	result := one
	for i := 0; i < 100; i++ { // 2^100, far past any machine int
		result, err = Mul(a, result, two)
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, a, result))
	require.Equal(t, "1267650600228229401496703205376", buf.String())
}

func TestReadParsesSignedDecimal(t *testing.T) {
	a := newFakeAllocator(t)

	r := bufio.NewReader(strings.NewReader("  -42 rest"))
	ref, err := Read(a, r)
	require.NoError(t, err)
	require.Equal(t, int32(-42), ToInt32(a, ref))
}

func TestReadRejectsMalformedInput(t *testing.T) {
	a := newFakeAllocator(t)

	r := bufio.NewReader(strings.NewReader("abc"))
	_, err := Read(a, r)
	require.ErrorIs(t, err, ErrFormat)
}
