package rfc6242

import (
	"bufio"
	"bytes"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// FramerFn is the input tokenization function used by a Decoder.
type FramerFn func(d *Decoder, data []byte, atEOF bool) (advance int, token []byte, err error)

// Decoder is an RFC6242 transport framing decoder filter.
//
// Decoder operates as an inline filter, taking an io.Reader as input
// and providing io.Reader as well as the low-overhead io.WriterTo.
//
// Decoder is not safe for concurrent use.
type Decoder struct {
	// Input is the input source for the Decoder.
	Input io.Reader

	framer FramerFn
	// pendingFramer takes effect once the framer in use detects end of message.
	pendingFramer FramerFn

	s  *bufio.Scanner
	pr *io.PipeReader
	pw *io.PipeWriter

	// pipedCount is the number of bytes still to be read from the pipe for an
	// oversized token that didn't fit the caller's buffer in one Read.
	pipedCount int

	// chunkDataLeft is the number of chunk-data bytes still to be delivered
	// for the chunk header most recently parsed by decoderChunked.
	chunkDataLeft uint64
	bufSize       int
	anySeen       bool
}

// NewDecoder creates a new RFC6242 transport framing decoder reading from
// input, configured with any options provided.
func NewDecoder(input io.Reader, options ...DecoderOption) *Decoder {
	d := &Decoder{
		Input:   input,
		framer:  decoderEndOfMessage,
		bufSize: defaultReaderBufferSize,
	}
	for _, option := range options {
		option(d)
	}
	d.pr, d.pw = io.Pipe()
	if d.s == nil {
		d.s = bufio.NewScanner(input)
		buf := make([]byte, d.bufSize)
		d.s.Buffer(buf, d.bufSize)
	}
	d.s.Split(d.split)
	return d
}

// Read reads from the Decoder's input and copies the data into b,
// implementing io.Reader.
func (d *Decoder) Read(b []byte) (n int, err error) {
	if d.pipedCount > 0 {
		n, err = d.pr.Read(b)
		d.pipedCount -= n
		return n, err
	}
	if d.s.Scan() {
		token := d.s.Bytes()
		if len(token) <= len(b) {
			copy(b, token)
			return len(token), nil
		}
		tok := append([]byte(nil), token...)
		d.pipedCount = len(tok)
		go func() {
			if _, werr := d.pw.Write(tok); werr != nil {
				d.pr.CloseWithError(werr) //nolint:errcheck
			}
		}()
		n, err = d.pr.Read(b)
		d.pipedCount -= n
		return n, err
	}
	if err = d.s.Err(); err == nil {
		err = io.EOF
	}
	return 0, err
}

// WriteTo reads from the Decoder's input, strips the transport encoding and
// writes the decoded data to w, implementing io.WriterTo.
func (d *Decoder) WriteTo(w io.Writer) (n int64, err error) {
	for err == nil && d.s.Scan() {
		b := d.s.Bytes()
		if len(b) == 0 {
			continue
		}
		var wn int
		wn, err = w.Write(b)
		n += int64(wn)
	}
	if err == nil {
		err = d.s.Err()
	}
	return n, err
}

func (d *Decoder) split(data []byte, atEOF bool) (int, []byte, error) {
	return d.framer(d, data, atEOF)
}

// markEndOfMessage records that a full framing message boundary has been
// observed, committing any framer change requested mid-message via setFramer.
func (d *Decoder) markEndOfMessage() {
	d.anySeen = true
	if d.pendingFramer != nil {
		d.framer = d.pendingFramer
		d.pendingFramer = nil
	}
}

// setFramer changes the active framer. If no message boundary has been seen
// yet, the change is deferred until one has, so that the message currently
// being read is not re-framed partway through.
func (d *Decoder) setFramer(f FramerFn) {
	if !d.anySeen {
		d.pendingFramer = f
	} else {
		d.framer = f
	}
}

// decoderEndOfMessage implements NETCONF 1.0 "]]>]]>" end-of-message framing.
func decoderEndOfMessage(d *Decoder, data []byte, atEOF bool) (advance int, token []byte, err error) {
	if i := bytes.Index(data, tokenEOM); i >= 0 {
		d.markEndOfMessage()
		return i + len(tokenEOM), data[:i], nil
	}
	if atEOF {
		if len(data) == 0 {
			return 0, nil, nil
		}
		return 0, nil, errors.WithStack(io.ErrUnexpectedEOF)
	}
	// Hold back a suffix that could be the prefix of a split tokenEOM.
	if safe := len(data) - (len(tokenEOM) - 1); safe > 0 {
		return safe, data[:safe], nil
	}
	return 0, nil, nil
}

// decoderChunked implements NETCONF 1.1 chunked framing.
func decoderChunked(d *Decoder, data []byte, atEOF bool) (advance int, token []byte, err error) {
	if d.chunkDataLeft > 0 {
		n := uint64(len(data))
		if n > d.chunkDataLeft {
			n = d.chunkDataLeft
		}
		if n == 0 {
			if atEOF {
				return 0, nil, errors.WithStack(io.ErrUnexpectedEOF)
			}
			return 0, nil, nil
		}
		d.chunkDataLeft -= n
		return int(n), data[:n], nil
	}

	if len(data) < 2 {
		if atEOF {
			if len(data) == 0 {
				return 0, nil, nil
			}
			return 0, nil, errors.New("rfc6242: invalid chunk header: unexpected EOF")
		}
		return 0, nil, nil
	}
	if data[0] != '\n' || data[1] != '#' {
		return 0, nil, errors.Errorf("rfc6242: invalid chunk header: expected '\\n#', got %q", data[:2])
	}
	if len(data) >= 4 && data[2] == '#' && data[3] == '\n' {
		d.markEndOfMessage()
		// Go straight on to what follows, so that buffered input after
		// the marker is not dropped once the scanner has seen EOF.
		adv, tok, err := d.framer(d, data[4:], atEOF)
		return 4 + adv, tok, err
	}

	i := bytes.IndexByte(data[2:], '\n')
	if i < 0 {
		if len(data)-2 > rfc6242maximumAllowedChunkSizeLength || atEOF {
			return 0, nil, errors.New("rfc6242: invalid chunk header: no valid chunk-size detected")
		}
		return 0, nil, nil
	}

	sizeField := data[2 : 2+i]
	if len(sizeField) == 0 || len(sizeField) > rfc6242maximumAllowedChunkSizeLength || sizeField[0] == '0' {
		return 0, nil, errors.New("rfc6242: invalid chunk header: no valid chunk-size detected")
	}
	size, perr := strconv.ParseUint(string(sizeField), 10, 64)
	if perr != nil {
		return 0, nil, errors.Wrap(perr, "rfc6242: invalid chunk header")
	}
	if size > maximumAllowedChunkSize {
		return 0, nil, errors.New("rfc6242: invalid chunk header: chunk size larger than maximum")
	}

	d.chunkDataLeft = size
	adv, tok, err := decoderChunked(d, data[2+i+1:], atEOF)
	return 2 + i + 1 + adv, tok, err
}
