package traffic

// Per-metric smoothing factors. Chosen for the noise character of each
// signal: waiting time is a saw-tooth from departures and gets the
// heaviest smoothing, vehicle count jumps discretely and needs the
// lightest.
const (
	AlphaQueueLength    = 0.3
	AlphaDensity        = 0.4
	AlphaAvgWaitingTime = 0.2
	AlphaVehicleCount   = 0.5
)

// EMA is an exponential moving average filter over keyed series:
// smoothed = alpha*raw + (1-alpha)*previous. The first sample of a key
// passes through unchanged, so there is no smoothing lag on first
// observation.
type EMA struct {
	alpha float64
	state map[string]float64
}

// NewEMA creates an EMA filter with the given smoothing factor. Alpha 1
// means no smoothing (raw passthrough); alpha near 0 means the filter
// barely moves.
func NewEMA(alpha float64) *EMA {
	return &EMA{
		alpha: alpha,
		state: make(map[string]float64),
	}
}

// Update folds one raw sample for a key into the filter and returns the
// smoothed value.
func (e *EMA) Update(key string, value float64) float64 {
	prev, ok := e.state[key]
	if !ok {
		e.state[key] = value
		return value
	}
	smoothed := e.alpha*value + (1-e.alpha)*prev
	e.state[key] = smoothed
	return smoothed
}

// Get returns the current smoothed value for a key, or def when the key
// has never been observed.
func (e *EMA) Get(key string, def float64) float64 {
	if v, ok := e.state[key]; ok {
		return v
	}
	return def
}

// Reset clears all filter state.
func (e *EMA) Reset() {
	e.state = make(map[string]float64)
}

// Smoother applies independent EMA filters to the smoothed subset of lane
// metrics, keyed by lane ID. Emergency fields, stopped count, average
// speed and the raw diagnostic arrays pass through unsmoothed: the
// emergency signal is safety-relevant and binary, and downstream
// aggregation needs exact stopped counts.
//
// Smoothing state persists across updates exactly like the lane tracker's
// bookkeeping and is cleared by the same reset path.
type Smoother struct {
	queueLength *EMA
	density     *EMA
	waitingTime *EMA
	count       *EMA
}

// NewSmoother creates a smoother with the fixed per-metric factors.
func NewSmoother() *Smoother {
	return &Smoother{
		queueLength: NewEMA(AlphaQueueLength),
		density:     NewEMA(AlphaDensity),
		waitingTime: NewEMA(AlphaAvgWaitingTime),
		count:       NewEMA(AlphaVehicleCount),
	}
}

// Apply returns a new LaneState with the smoothed metric subset replaced
// and everything else carried through from the raw state.
func (s *Smoother) Apply(raw LaneState) LaneState {
	smoothed := raw
	smoothed.QueueLengthM = s.queueLength.Update(raw.LaneID, raw.QueueLengthM)
	smoothed.Density = s.density.Update(raw.LaneID, raw.Density)
	smoothed.AvgWaitingTimeSec = s.waitingTime.Update(raw.LaneID, raw.AvgWaitingTimeSec)
	smoothed.VehicleCount = int(s.count.Update(raw.LaneID, float64(raw.VehicleCount)))
	return smoothed
}

// Reset clears all per-lane smoothing history, re-seeding every filter on
// the next sample.
func (s *Smoother) Reset() {
	s.queueLength.Reset()
	s.density.Reset()
	s.waitingTime.Reset()
	s.count.Reset()
}
