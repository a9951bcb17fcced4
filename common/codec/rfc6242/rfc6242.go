// Package rfc6242 implements the NETCONF transport framing defined by
// RFC 6242: the "]]>]]>" end-of-message framing used before version
// negotiation (and for base:1.0 peers), and the chunked framing used once
// a peer has negotiated base:1.1.
package rfc6242

// tokenEOM is the NETCONF 1.0 message delimiter sequence.
var tokenEOM = []byte{']', ']', '>', ']', ']', '>'}

const (
	// maximumAllowedChunkSize is the largest chunk-size RFC6242 section 4.2 permits.
	maximumAllowedChunkSize = 4294967295
	// rfc6242maximumAllowedChunkSizeLength is the length in bytes of the decimal
	// representation of maximumAllowedChunkSize, used to bound chunk-size header parsing.
	rfc6242maximumAllowedChunkSizeLength = 10
	// defaultReaderBufferSize is the default read buffer capacity used by the Decoder's scanner.
	defaultReaderBufferSize = 65536
	// DefaultMaxChunkSize is the default ceiling on the size of a single outbound write fragment.
	DefaultMaxChunkSize = 16 * 1024
	// DefaultMinSendSize is the historical floor below which a final outbound fragment is padded.
	DefaultMinSendSize = 64
)
