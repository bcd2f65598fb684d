package handshake

// Server validates the server side of a single connection's handshake.
// It holds the secret used to compute/validate digests and the identity
// of the connection once admitted, so that duplicate ClientConnectRequests
// are accepted idempotently while requests carrying an unrelated
// timestamp are dropped.
type Server struct {
	secret []byte

	admitted  bool
	timestamp [TimestampSize]byte
	digest    [DigestSize]byte
}

// NewServer returns a Server that signs and validates digests with secret.
func NewServer(secret []byte) *Server {
	return &Server{secret: secret}
}

// ChallengeResponse computes the digest for a freshly received
// ClientChallengeRequest's timestamp. The server stores nothing at this
// point: the digest is self-contained and re-derivable, so a dropped
// response costs only a retransmit.
func (s *Server) ChallengeResponse(timestamp [TimestampSize]byte) [DigestSize]byte {
	return ComputeDigest(s.secret, timestamp)
}

// HandleConnectRequest validates a ClientConnectRequest's timestamp and
// digest. On the first valid request it admits the connection and
// returns admitted=true. A later request carrying the same timestamp and
// digest is idempotent (already admitted, no error). A request carrying
// a different timestamp after admission is treated as unrelated and
// rejected without disturbing the already-admitted connection.
func (s *Server) HandleConnectRequest(timestamp [TimestampSize]byte, digest [DigestSize]byte) (admitted bool, err error) {
	if s.admitted {
		if timestamp == s.timestamp && digest == s.digest {
			return true, nil
		}
		return false, ErrDigestMismatch
	}

	if err := ValidateDigest(s.secret, timestamp, digest); err != nil {
		return false, err
	}

	s.admitted = true
	s.timestamp = timestamp
	s.digest = digest
	return true, nil
}

// Admitted reports whether this server-side handshake has already
// admitted a connection.
func (s *Server) Admitted() bool {
	return s.admitted
}
