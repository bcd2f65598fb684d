// Package wire implements the bit-granular serialization codec consumed by
// every higher layer of the replication stack.
//
// Encoding is bit-level, not byte-level: primitives may pack into partial
// bytes, and variable-length integers are self-delimiting so a reader never
// needs an external length to know where a value ends. The codec never
// panics on malformed input — every failure mode returns a SerdeErr.
package wire

import "errors"

// SerdeErr is the one opaque error kind the codec returns. All decode
// failures (truncated input, invalid bit counts or field widths,
// oversized varints or byte-string length prefixes) surface as this single sentinel wrapped
// with context. The codec never panics on malformed input.
var SerdeErr = errors.New("wire: serde error")

// defaultLengthFieldWidth is the field width used for the length prefix of
// byte strings and for internal varint chunking. 7 bits, matching the
// common "7 bits of payload + 1 continuation bit = 1 byte" shape used by
// most production varint codecs, so encoded values round to whole bytes in
// the common case.
const defaultLengthFieldWidth = 7
