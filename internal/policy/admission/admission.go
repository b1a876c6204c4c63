// Package admission implements the pluggable admission strategies named
// in §4.6: a fixed-threshold gate, a TinyLFU-style frequency comparison
// against the current eviction victim, and a size-aware gate that
// refuses oversized candidates outright regardless of hotness.
package admission

import (
	"github.com/hybridkv/hotcache/internal/policy"
	"github.com/hybridkv/hotcache/internal/sketch"
)

// Threshold admits a candidate only once a hotness estimator reports at
// least minEstimate observations for it. Simplest possible admission
// gate, useful when the workload is already known to be skewed and the
// cost of a wrong admission is low.
type Threshold struct {
	hot         policy.Hotness
	minEstimate uint32
}

// NewThreshold constructs a Threshold admission policy.
func NewThreshold(hot policy.Hotness, minEstimate uint32) *Threshold {
	return &Threshold{hot: hot, minEstimate: minEstimate}
}

func (a *Threshold) OnAdmit(candidate policy.EntryView, _ *policy.EntryView) bool {
	return a.hot.Estimate(candidate.Fingerprint) >= a.minEstimate
}

// TinyLFU admits a candidate over the incumbent victim only if the
// candidate's estimated frequency is strictly greater, the standard
// TinyLFU "admit if doorkeeper says so" comparison (here without a
// separate doorkeeper bit array, relying on the sketch's own zero
// baseline for never-seen keys), grounded on the frequency-comparison
// shape of ristretto's admission policy.
type TinyLFU struct {
	sk *sketch.Sketch
}

// NewTinyLFU constructs a TinyLFU admission policy backed by sk.
func NewTinyLFU(sk *sketch.Sketch) *TinyLFU {
	return &TinyLFU{sk: sk}
}

func (a *TinyLFU) OnAdmit(candidate policy.EntryView, victim *policy.EntryView) bool {
	if victim == nil {
		return true
	}
	return a.sk.Estimate(candidate.Fingerprint) > a.sk.Estimate(victim.Fingerprint)
}

// SizeAware refuses any candidate larger than maxBytes outright, then
// defers to an inner policy for the remaining decision. Used to keep a
// single oversized value from displacing many small hot entries.
type SizeAware struct {
	maxBytes int64
	inner    policy.Admission
}

// NewSizeAware constructs a SizeAware admission policy wrapping inner.
func NewSizeAware(maxBytes int64, inner policy.Admission) *SizeAware {
	return &SizeAware{maxBytes: maxBytes, inner: inner}
}

func (a *SizeAware) OnAdmit(candidate policy.EntryView, victim *policy.EntryView) bool {
	if candidate.SizeBytes > a.maxBytes {
		return false
	}
	return a.inner.OnAdmit(candidate, victim)
}
