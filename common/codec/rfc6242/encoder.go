package rfc6242

import (
	"io"
	"strconv"
)

// NewEncoder returns a new RFC6242 transport encoding writer wrapping
// output, configured with any options provided.
func NewEncoder(output io.Writer, opts ...EncoderOption) *Encoder {
	e := &Encoder{Output: output, MaxChunkSize: maximumAllowedChunkSize}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Encoder is a filtering writer. By default it acts as a pass-through writer.
// If chunked framing is enabled (see SetChunkedFraming), data passed to Write
// is split into RFC6242 chunks before being written to the underlying writer.
type Encoder struct {
	// Output is the underlying Writer to receive encoded output.
	Output io.Writer
	// ChunkedFraming selects chunked-message framing (true) or
	// end-of-message framing (false).
	ChunkedFraming bool
	// MaxChunkSize bounds the size of chunks written by writeChunked.
	MaxChunkSize uint32
}

// Write writes the framed output for b to the underlying writer.
func (e *Encoder) Write(b []byte) (n int, err error) {
	if len(b) == 0 {
		return 0, nil
	}
	if e.ChunkedFraming {
		return e.writeChunked(b)
	}
	return e.Output.Write(b)
}

// EndOfMessage must be called after each conceptual message is written to
// the Encoder. It writes the appropriate message terminator, either
// "]]>]]>" or, if chunked framing is enabled, "\n##\n".
func (e *Encoder) EndOfMessage() error {
	var err error
	if e.ChunkedFraming {
		_, err = e.Output.Write([]byte("\n##\n"))
	} else {
		_, err = e.Output.Write(tokenEOM)
	}
	return err
}

// Close attempts to close the underlying writer.
func (e *Encoder) Close() error {
	if closer, ok := e.Output.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (e *Encoder) writeChunked(b []byte) (n int, err error) {
	for n < len(b) {
		chunksize := len(b) - n
		if e.MaxChunkSize > 0 && uint32(chunksize) > e.MaxChunkSize {
			chunksize = int(e.MaxChunkSize)
		}

		if _, err = e.Output.Write([]byte("\n#")); err != nil {
			break
		}
		if _, err = e.Output.Write([]byte(strconv.Itoa(chunksize) + "\n")); err != nil {
			break
		}
		var wn int
		wn, err = e.Output.Write(b[n : n+chunksize])
		n += wn
		if err != nil {
			break
		}
	}
	return n, err
}
