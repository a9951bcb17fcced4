package rfc6242

import (
	"bytes"
	"fmt"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, d *Decoder) string {
	t.Helper()
	var out bytes.Buffer
	buf := make([]byte, 4096)
	for {
		n, err := d.Read(buf)
		out.Write(buf[:n])
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
	}
	return out.String()
}

func TestDecoderEndOfMessageSingleMessage(t *testing.T) {
	d := NewDecoder(bytes.NewBufferString("<hello/>]]>]]>"))
	require.Equal(t, "<hello/>", readAll(t, d))
}

func TestDecoderEndOfMessageMultipleMessages(t *testing.T) {
	d := NewDecoder(bytes.NewBufferString("<one/>]]>]]><two/>]]>]]>"))

	buf := make([]byte, 4096)
	n, err := d.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "<one/>", string(buf[:n]))

	n, err = d.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "<two/>", string(buf[:n]))

	_, err = d.Read(buf)
	require.ErrorIs(t, err, io.EOF)
}

func TestDecoderEndOfMessageMissingTerminator(t *testing.T) {
	// Bytes that cannot be part of a split terminator are delivered as they
	// arrive; the missing terminator is reported once the input ends.
	d := NewDecoder(bytes.NewBufferString("<hello/>"))
	buf := make([]byte, 4096)
	var err error
	for err == nil {
		_, err = d.Read(buf)
	}
	require.Error(t, err)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDecoderEndOfMessageSmallReadBuffer(t *testing.T) {
	d := NewDecoder(bytes.NewBufferString("abcdefghij]]>]]>"))
	var out bytes.Buffer
	buf := make([]byte, 3)
	for {
		n, err := d.Read(buf)
		out.Write(buf[:n])
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
	}
	require.Equal(t, "abcdefghij", out.String())
}

func TestDecoderChunkedSingleChunk(t *testing.T) {
	d := NewDecoder(bytes.NewBufferString("\n#6\n<rpc/>\n##\n"), WithFramer(decoderChunked))
	require.Equal(t, "<rpc/>", readAll(t, d))
}

func TestDecoderChunkedMultipleChunks(t *testing.T) {
	d := NewDecoder(bytes.NewBufferString("\n#3\nabc\n#3\ndef\n##\n"), WithFramer(decoderChunked))
	require.Equal(t, "abcdef", readAll(t, d))
}

func TestDecoderChunkedInvalidHeader(t *testing.T) {
	d := NewDecoder(bytes.NewBufferString("not-a-chunk-header"), WithFramer(decoderChunked))
	buf := make([]byte, 64)
	_, err := d.Read(buf)
	require.Error(t, err)
}

func TestDecoderChunkedOversizedChunk(t *testing.T) {
	d := NewDecoder(bytes.NewBufferString("\n#4294967296\nabc\n##\n"), WithFramer(decoderChunked))
	buf := make([]byte, 64)
	_, err := d.Read(buf)
	require.Error(t, err)
}

func TestDecoderChunkedLeadingZeroRejected(t *testing.T) {
	d := NewDecoder(bytes.NewBufferString("\n#06\n<rpc/>\n##\n"), WithFramer(decoderChunked))
	buf := make([]byte, 64)
	_, err := d.Read(buf)
	require.Error(t, err)
}

func TestSetChunkedFramingDeferredUntilEndOfMessage(t *testing.T) {
	// A framer change requested mid-message (before any end-of-message has
	// been observed) only takes effect once the current message completes.
	d := NewDecoder(bytes.NewBufferString("<hello/>]]>]]>\n#6\n<rpc/>\n##\n"))
	SetChunkedFraming(d)

	buf := make([]byte, 4096)
	n, err := d.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "<hello/>", string(buf[:n]))

	n, err = d.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "<rpc/>", string(buf[:n]))
}

func TestWriteTo(t *testing.T) {
	d := NewDecoder(bytes.NewBufferString("<one/>]]>]]><two/>]]>]]>"))
	var out bytes.Buffer
	n, err := d.WriteTo(&out)
	require.NoError(t, err)
	require.Equal(t, int64(len("<one/><two/>")), n)
	require.Equal(t, "<one/><two/>", out.String())
}

func TestDecoderEndOfMessageOneByteReads(t *testing.T) {
	// Framing must be read-boundary-agnostic: the same PDU arrives whether
	// the transport delivers it in one read or one byte at a time.
	input := `<rpc message-id="1"><get/></rpc>]]>]]>`
	d := NewDecoder(iotest.OneByteReader(bytes.NewBufferString(input)))
	require.Equal(t, `<rpc message-id="1"><get/></rpc>`, readAll(t, d))
}

func TestDecoderChunkedOneByteReads(t *testing.T) {
	d := NewDecoder(iotest.OneByteReader(bytes.NewBufferString("\n#6\n<rpc/>\n##\n")),
		WithFramer(decoderChunked))
	require.Equal(t, "<rpc/>", readAll(t, d))
}

func TestDecoderChunkedThreeChunksOfVaryingSizes(t *testing.T) {
	var wire bytes.Buffer
	parts := []string{"aaaaa", "bbbbbbbbbbbbbbbbb", "ccc"} // 5, 17, 3 bytes
	for _, p := range parts {
		fmt.Fprintf(&wire, "\n#%d\n%s", len(p), p)
	}
	wire.WriteString("\n##\n")

	d := NewDecoder(&wire, WithFramer(decoderChunked))
	require.Equal(t, "aaaaabbbbbbbbbbbbbbbbbccc", readAll(t, d))
}
