package handshake

import "fmt"

// Client drives the client side of the handshake: it owns the FSM state,
// the outstanding timestamp and, once received, the server digest and
// seeded tick. It performs no I/O; callers inspect the Result.Actions
// returned from each method and perform the actual send/seed/notify.
type Client struct {
	state     State
	timestamp [TimestampSize]byte
	digest    [DigestSize]byte
	hasDigest bool
}

// NewClient returns a Client in AwaitingChallengeResponse with no
// outstanding timestamp.
func NewClient() *Client {
	return &Client{state: AwaitingChallengeResponse}
}

// State returns the client's current handshake state.
func (c *Client) State() State {
	return c.state
}

// Timestamp returns the timestamp currently outstanding, valid once a
// challenge request has been sent.
func (c *Client) Timestamp() [TimestampSize]byte {
	return c.timestamp
}

// Digest returns the server digest stored after a successful challenge
// response, and whether one has been stored yet.
func (c *Client) Digest() ([DigestSize]byte, bool) {
	return c.digest, c.hasDigest
}

// Tick drives a retry-interval timer event, advancing timestamp for a
// fresh challenge request if still in AwaitingChallengeResponse.
func (c *Client) Tick(freshTimestamp [TimestampSize]byte) Result {
	if c.state == AwaitingChallengeResponse {
		c.timestamp = freshTimestamp
	}
	res := ApplyEvent(c.state, EventTick)
	c.state = res.NewState
	return res
}

// HandleChallengeResponse processes a ServerChallengeResponse. echoedTimestamp
// must match the outstanding timestamp or the response is stale and is
// ignored (Result.Changed is false, actions empty).
func (c *Client) HandleChallengeResponse(echoedTimestamp [TimestampSize]byte, digest [DigestSize]byte) Result {
	if echoedTimestamp != c.timestamp {
		return Result{OldState: c.state, NewState: c.state, Changed: false}
	}
	c.digest = digest
	c.hasDigest = true
	res := ApplyEvent(c.state, EventChallengeResponse)
	c.state = res.NewState
	return res
}

// HandleConnectResponse processes a ServerConnectResponse, completing the
// handshake.
func (c *Client) HandleConnectResponse() Result {
	res := ApplyEvent(c.state, EventConnectResponse)
	c.state = res.NewState
	return res
}

// Reset aborts the handshake and returns the client to
// AwaitingChallengeResponse, discarding any stored digest.
func (c *Client) Reset() Result {
	res := ApplyEvent(c.state, EventReset)
	c.state = res.NewState
	c.hasDigest = false
	return res
}

// ConnectRequestPayload returns the timestamp||digest payload for
// ClientConnectRequest. Returns an error if no digest has been stored
// yet (the client hasn't received a challenge response).
func (c *Client) ConnectRequestPayload() ([]byte, error) {
	if !c.hasDigest {
		return nil, fmt.Errorf("handshake: no digest stored, cannot build connect request")
	}
	out := make([]byte, 0, TimestampSize+DigestSize)
	out = append(out, c.timestamp[:]...)
	out = append(out, c.digest[:]...)
	return out, nil
}
