// Package audio provides the sample-count clock used to timestamp
// transcript fragments when a producer supplies no timing of its own.
package audio

// Clock derives an audio-time offset from accumulated byte counts.
// Purely additive; there is no wall-clock drift correction.
type Clock struct {
	sampleRateHz int
	channels     int
	bytesPerSamp int
	samples      int64
}

// NewClock builds a clock for the given PCM format. bitsPerSample is
// typically 16 for PCM_S16LE.
func NewClock(sampleRateHz, channels, bitsPerSample int) *Clock {
	return &Clock{
		sampleRateHz: sampleRateHz,
		channels:     channels,
		bytesPerSamp: bitsPerSample / 8,
	}
}

func (c *Clock) valid() bool {
	return c.sampleRateHz > 0 && c.channels > 0 && c.bytesPerSamp > 0
}

// Advance adds byteLen/(bytesPerSample*channels) samples, floored.
// Negative lengths and invalid configurations are no-ops.
func (c *Clock) Advance(byteLen int) {
	if byteLen <= 0 || !c.valid() {
		return
	}
	c.samples += int64(byteLen) / int64(c.bytesPerSamp*c.channels)
}

// Now returns the accumulated audio time in seconds.
func (c *Clock) Now() float64 {
	if !c.valid() {
		return 0
	}
	return float64(c.samples) / float64(c.sampleRateHz)
}

// Samples returns the accumulated sample count.
func (c *Clock) Samples() int64 {
	return c.samples
}
