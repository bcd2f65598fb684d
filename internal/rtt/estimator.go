// Package rtt implements the ping/pong round-trip estimator: a
// monotonic nonce is sent with each ping, the matching pong yields a
// sample RTT, and the estimator maintains a smoothed RTT and jitter
// (EWMA of the absolute deviation from the mean) for the connection's
// liveness and interpolation bookkeeping.
package rtt

import (
	"math"
	"time"
)

// smoothingFactor weights how much each new sample moves the running
// mean and jitter estimate. Matches the RFC 6298-style alpha commonly
// used for smoothed RTT (1/8 new sample, 7/8 history).
const smoothingFactor = 0.125

// Estimator tracks outstanding pings and maintains smoothed RTT/jitter.
type Estimator struct {
	outstanding map[uint16]time.Time

	hasSample bool
	smoothed  time.Duration
	jitter    time.Duration
}

// NewEstimator returns an empty Estimator.
func NewEstimator() *Estimator {
	return &Estimator{outstanding: make(map[uint16]time.Time)}
}

// RecordPingSent registers a ping with the given nonce as sent at sentAt.
func (e *Estimator) RecordPingSent(nonce uint16, sentAt time.Time) {
	e.outstanding[nonce] = sentAt
}

// RecordPongReceived consumes the matching ping for nonce and folds its
// round-trip sample into the smoothed estimate. ok is false if nonce
// does not match any outstanding ping (a duplicate or stale pong).
func (e *Estimator) RecordPongReceived(nonce uint16, receivedAt time.Time) (sample time.Duration, ok bool) {
	sentAt, found := e.outstanding[nonce]
	if !found {
		return 0, false
	}
	delete(e.outstanding, nonce)

	sample = receivedAt.Sub(sentAt)
	e.addSample(sample)
	return sample, true
}

func (e *Estimator) addSample(sample time.Duration) {
	if !e.hasSample {
		e.smoothed = sample
		e.jitter = 0
		e.hasSample = true
		return
	}

	deviation := time.Duration(math.Abs(float64(sample - e.smoothed)))
	e.jitter += time.Duration(smoothingFactor * float64(deviation-e.jitter))
	e.smoothed += time.Duration(smoothingFactor * float64(sample-e.smoothed))
}

// RTT returns the current smoothed round-trip time and whether at least
// one sample has been observed.
func (e *Estimator) RTT() (time.Duration, bool) {
	return e.smoothed, e.hasSample
}

// Jitter returns the current smoothed jitter estimate.
func (e *Estimator) Jitter() time.Duration {
	return e.jitter
}

// OutstandingCount reports how many pings have not yet been answered.
// Callers use this to decide whether a ping timer fired while prior
// pings are still in flight (e.g. to cap concurrent outstanding pings).
func (e *Estimator) OutstandingCount() int {
	return len(e.outstanding)
}

// ForgetOlderThan drops outstanding pings sent before cutoff, treating
// them as permanently lost so the outstanding map does not grow
// unbounded if a pong is never going to arrive.
func (e *Estimator) ForgetOlderThan(cutoff time.Time) {
	for nonce, sentAt := range e.outstanding {
		if sentAt.Before(cutoff) {
			delete(e.outstanding, nonce)
		}
	}
}
