package sim

import (
	"fmt"
	"math/bits"

	"github.com/Iron-Ham/sortwatch/internal/errors"
)

// Algorithm selects the sort the entry function runs.
type Algorithm string

const (
	// Introsort is libstdc++'s std::sort: quicksort with median-of-three
	// pivots, a heapsort fallback past the depth limit and a final
	// insertion sort.
	Introsort Algorithm = "introsort"
	// Insertion is a plain insertion sort built from moves only.
	Insertion Algorithm = "insertion"
	// Heap is make_heap followed by sort_heap.
	Heap Algorithm = "heap"
)

// Algorithms lists the supported algorithms.
var Algorithms = []Algorithm{Introsort, Insertion, Heap}

// ParseAlgorithm validates an algorithm name.
func ParseAlgorithm(name string) (Algorithm, error) {
	for _, a := range Algorithms {
		if string(a) == name {
			return a, nil
		}
	}
	return "", errors.NewValidationError(fmt.Sprintf("unknown algorithm %q", name)).
		WithField("sim.algorithm").WithValue(name)
}

// threshold is libstdc++'s _S_threshold.
const threshold = 16

// functions are every name the program defines.
var functions = []string{
	MainSymbol,
	EntrySymbol,
	SwapSymbol,
	MoveConstructSymbol,
	MoveAssignSymbol,
	"std::__introsort_loop",
	"std::__unguarded_partition",
	"std::__insertion_sort",
	"std::__unguarded_linear_insert",
	"std::__make_heap",
	"std::__pop_heap",
	"std::__adjust_heap",
}

func (p *Program) val(i int) int64 {
	return p.mem[p.addr(i)]
}

func (p *Program) swap(a, b uint64) {
	p.call(SwapSymbol, map[string]uint64{SwapAExpr: a, SwapBExpr: b}, func() {
		tmp := p.alloca()
		p.moveConstruct(tmp, a)
		p.moveAssign(a, b)
		p.moveAssign(b, tmp)
	})
}

func (p *Program) moveConstruct(dst, src uint64) {
	p.call(MoveConstructSymbol, map[string]uint64{ThisExpr: dst, OtherExpr: src}, func() {
		p.mem[dst] = p.mem[src]
	})
}

func (p *Program) moveAssign(dst, src uint64) {
	p.call(MoveAssignSymbol, map[string]uint64{ThisExpr: dst, OtherExpr: src}, func() {
		p.mem[dst] = p.mem[src]
	})
}

// sort is the entry function.
func (p *Program) sort(first, last int) {
	p.call(EntrySymbol, map[string]uint64{FirstExpr: p.addr(first), LastExpr: p.addr(last)}, func() {
		if last-first < 2 {
			return
		}
		switch p.opts.Algorithm {
		case Insertion:
			p.insertionSort(first, last)
		case Heap:
			p.heapSort(first, last)
		default:
			p.introsortLoop(first, last, 2*(bits.Len(uint(last-first))-1))
			p.finalInsertionSort(first, last)
		}
	})
}

func (p *Program) introsortLoop(first, last, depth int) {
	p.call("std::__introsort_loop", nil, func() {
		for last-first > threshold {
			if depth == 0 {
				p.heapSort(first, last)
				return
			}
			depth--
			cut := p.partitionPivot(first, last)
			p.introsortLoop(cut, last, depth)
			last = cut
		}
	})
}

func (p *Program) partitionPivot(first, last int) int {
	mid := first + (last-first)/2
	p.moveMedianToFirst(first, first+1, mid, last-1)
	return p.unguardedPartition(first+1, last, first)
}

func (p *Program) moveMedianToFirst(result, a, b, c int) {
	va, vb, vc := p.val(a), p.val(b), p.val(c)
	pick := b
	switch {
	case va < vb:
		switch {
		case vb < vc:
			pick = b
		case va < vc:
			pick = c
		default:
			pick = a
		}
	case va < vc:
		pick = a
	case vb < vc:
		pick = c
	}
	p.swap(p.addr(result), p.addr(pick))
}

func (p *Program) unguardedPartition(first, last, pivot int) int {
	var cut int
	p.call("std::__unguarded_partition", nil, func() {
		for {
			for p.val(first) < p.val(pivot) {
				first++
			}
			last--
			for p.val(pivot) < p.val(last) {
				last--
			}
			if first >= last {
				cut = first
				return
			}
			p.swap(p.addr(first), p.addr(last))
			first++
		}
	})
	return cut
}

func (p *Program) finalInsertionSort(first, last int) {
	if last-first <= threshold {
		p.insertionSort(first, last)
		return
	}
	p.insertionSort(first, first+threshold)
	for i := first + threshold; i < last; i++ {
		p.unguardedLinearInsert(i)
	}
}

func (p *Program) insertionSort(first, last int) {
	p.call("std::__insertion_sort", nil, func() {
		for i := first + 1; i < last; i++ {
			if p.val(i) >= p.val(first) {
				p.unguardedLinearInsert(i)
				continue
			}
			tmp := p.alloca()
			p.moveConstruct(tmp, p.addr(i))
			for j := i; j > first; j-- {
				p.moveAssign(p.addr(j), p.addr(j-1))
			}
			p.moveAssign(p.addr(first), tmp)
			p.sp += p.opts.Stride
			delete(p.mem, tmp)
		}
	})
}

func (p *Program) unguardedLinearInsert(i int) {
	p.call("std::__unguarded_linear_insert", nil, func() {
		tmp := p.alloca()
		p.moveConstruct(tmp, p.addr(i))
		hole := i
		for p.mem[tmp] < p.val(hole-1) {
			p.moveAssign(p.addr(hole), p.addr(hole-1))
			hole--
		}
		p.moveAssign(p.addr(hole), tmp)
	})
}

func (p *Program) heapSort(first, last int) {
	p.makeHeap(first, last)
	for last-first > 1 {
		last--
		p.popHeap(first, last)
	}
}

func (p *Program) makeHeap(first, last int) {
	n := last - first
	if n < 2 {
		return
	}
	p.call("std::__make_heap", nil, func() {
		for parent := (n - 2) / 2; parent >= 0; parent-- {
			tmp := p.alloca()
			p.moveConstruct(tmp, p.addr(first+parent))
			p.adjustHeap(first, parent, n, tmp)
			p.sp += p.opts.Stride
			delete(p.mem, tmp)
		}
	})
}

// popHeap moves the top of the heap [first, last] to last and restores the
// heap property on [first, last).
func (p *Program) popHeap(first, last int) {
	p.call("std::__pop_heap", nil, func() {
		tmp := p.alloca()
		p.moveConstruct(tmp, p.addr(last))
		p.moveAssign(p.addr(last), p.addr(first))
		p.adjustHeap(first, 0, last-first, tmp)
	})
}

// adjustHeap sifts the hole at hole down to a leaf and pushes the value held
// in the temporary at value back up.
func (p *Program) adjustHeap(first, hole, n int, value uint64) {
	p.call("std::__adjust_heap", nil, func() {
		top := hole
		child := hole
		for child < (n-1)/2 {
			child = 2 * (child + 1)
			if p.val(first+child) < p.val(first+child-1) {
				child--
			}
			p.moveAssign(p.addr(first+hole), p.addr(first+child))
			hole = child
		}
		if n&1 == 0 && child == (n-2)/2 {
			child = 2 * (child + 1)
			p.moveAssign(p.addr(first+hole), p.addr(first+child-1))
			hole = child - 1
		}

		parent := (hole - 1) / 2
		for hole > top && p.val(first+parent) < p.mem[value] {
			p.moveAssign(p.addr(first+hole), p.addr(first+parent))
			hole = parent
			parent = (hole - 1) / 2
		}
		p.moveAssign(p.addr(first+hole), value)
	})
}
