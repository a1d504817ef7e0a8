// SPDX-License-Identifier: MIT

package cv

import "math/rand"

// Assign shuffles 0..n-1 with rand.NewSource(seed) and splits the
// permutation into k contiguous folds; the first n mod k folds receive one
// extra index. Every index lands in exactly one fold.
func Assign(n, k int, seed int64) [][]int {
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	folds := make([][]int, k)
	base, extra := n/k, n%k
	start := 0
	for f := 0; f < k; f++ {
		size := base
		if f < extra {
			size++
		}
		folds[f] = perm[start : start+size : start+size]
		start += size
	}

	return folds
}

// complement returns the indices of 0..n-1 not in held, ascending.
func complement(n int, held []int) []int {
	out := make([]int, 0, n-len(held))
	skip := make([]bool, n)
	for _, i := range held {
		skip[i] = true
	}
	for i := 0; i < n; i++ {
		if !skip[i] {
			out = append(out, i)
		}
	}

	return out
}
