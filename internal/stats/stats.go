package stats

import (
	"math"

	"github.com/fverao/powercapd/internal/device"
)

// JoulesToMilliwattHours converts joules to milliwatt-hours.
const JoulesToMilliwattHours = 1000.0 / 3600.0

// Channel holds descriptive statistics for one measurement channel.
// Std is the population standard deviation (denominator N).
type Channel struct {
	Mean float64
	Std  float64
	Min  float64
	Max  float64
}

// Result is the reduction of one sample window.
type Result struct {
	Samples int
	Current Channel
	Voltage Channel
	Power   Channel

	// EnergyJoules is a rectangular integration of instantaneous power at
	// the nominal sampling rate. Accuracy degrades when actual throughput
	// deviates from nominal.
	EnergyJoules       float64
	EnergyMilliwattHrs float64
}

// Compute reduces a window to per-channel statistics and energy. The
// sampler filters out empty windows before calling; a zero-length matrix
// yields the zero Result.
func Compute(m device.SampleMatrix, samplingRate float64) Result {
	n := m.Len()
	if n == 0 || samplingRate <= 0 {
		return Result{}
	}

	power := make([]float64, n)
	for i := 0; i < n; i++ {
		power[i] = m.Current[i] * m.Voltage[i]
	}

	energyJoules := sum(power) / samplingRate

	return Result{
		Samples:            n,
		Current:            describe(m.Current),
		Voltage:            describe(m.Voltage),
		Power:              describe(power),
		EnergyJoules:       energyJoules,
		EnergyMilliwattHrs: energyJoules * JoulesToMilliwattHours,
	}
}

func describe(values []float64) Channel {
	n := float64(len(values))
	mean := sum(values) / n

	var sqDiff float64
	minVal := values[0]
	maxVal := values[0]
	for _, v := range values {
		d := v - mean
		sqDiff += d * d
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}

	return Channel{
		Mean: mean,
		Std:  math.Sqrt(sqDiff / n),
		Min:  minVal,
		Max:  maxVal,
	}
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}

	return total
}
