package indicators

// Streaming is an indicator that is advanced one value at a time.
type Streaming interface {
	// Update feeds the next value and returns the current reading.
	Update(value float64) float64
	// Value returns the last reading. It is only meaningful once Ready.
	Value() float64
	// Ready reports whether enough values have been seen.
	Ready() bool
	// GetName returns the indicator name
	GetName() string
	// GetRequiredPeriods returns the warm-up length
	GetRequiredPeriods() int
}
