// Package atomicfloat provides a lock-free float64 cell used by the
// statistical scheduler to publish its running empirical success rate to
// readers (the adaptive stopping check, the progress dashboard) without
// contending with the estimator goroutine's hot path.
package atomicfloat

import (
	"math"
	"sync/atomic"
	"unsafe"
)

// Float64 encapsulates a float64 for non-locking atomic operations.
// WARNING: THIS CODE NEEDS REVIEW BY A GOLANG EXPERT. DO NOT TRUST THIS CODE FOR PRODUCTION.
// Cheats around locking a value many goroutines read far more often than the
// single estimator goroutine writes it. Passes the race detector; not
// otherwise rigorously evaluated.
type Float64 struct {
	val float64
}

// New encapsulates a float64 for atomic operations.
func New(val float64) *Float64 {
	return &Float64{val: val}
}

// AtomicRead reads the float64, synchronized with main memory.
func (af *Float64) AtomicRead() (value float64) {
	bits := atomic.LoadUint64((*uint64)(unsafe.Pointer(&af.val)))
	return math.Float64frombits(bits)
}

// AtomicAdd adds addend to the float64. On CAS failure the caller decides
// whether to retry; the estimator goroutine is the only writer so a failure
// here would mean a concurrent writer it didn't expect.
func (af *Float64) AtomicAdd(addend float64) (newVal float64, succeeded bool) {
	old := af.AtomicRead()
	newVal = old + addend
	succeeded = atomic.CompareAndSwapUint64(
		(*uint64)(unsafe.Pointer(&af.val)),
		math.Float64bits(old),
		math.Float64bits(newVal))
	return
}

// AtomicSet sets the float64, returns true on success.
func (af *Float64) AtomicSet(newVal float64) (succeeded bool) {
	old := af.AtomicRead()
	succeeded = atomic.CompareAndSwapUint64(
		(*uint64)(unsafe.Pointer(&af.val)),
		math.Float64bits(old),
		math.Float64bits(newVal))
	return
}
