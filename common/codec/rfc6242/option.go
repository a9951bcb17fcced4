package rfc6242

const (
	// DecoderMinScannerBufferSize is the scanner buffer size floor.
	DecoderMinScannerBufferSize = 20
)

// DecoderOption is a constructor option function for the Decoder type.
type DecoderOption func(*Decoder)

// EncoderOption is a constructor option function for the Encoder type.
type EncoderOption func(*Encoder)

// WithScannerBufferSize configures the buffer size of the bufio.Scanner used
// by the decoder to scan input tokens. If bytes is smaller than
// DecoderMinScannerBufferSize, the buffer size is raised to that floor.
func WithScannerBufferSize(bytes int) DecoderOption {
	return func(d *Decoder) {
		if bytes < DecoderMinScannerBufferSize {
			bytes = DecoderMinScannerBufferSize
		}
		d.bufSize = bytes
	}
}

// WithFramer sets the Decoder's initial framer.
func WithFramer(f FramerFn) DecoderOption { return func(d *Decoder) { d.framer = f } }

// WithMaximumChunkSize sets an upper bound on the chunk size used when
// writing data with an Encoder. If size is 0, the bound reverts to the
// maximum chunk size permitted by RFC6242.
func WithMaximumChunkSize(size uint32) EncoderOption {
	return func(e *Encoder) {
		if size < 1 {
			size = maximumAllowedChunkSize
		}
		e.MaxChunkSize = size
	}
}

// FragmentingWriterOption is a constructor option function for FragmentingWriter.
type FragmentingWriterOption func(*FragmentingWriter)

// WithMaxFragmentSize overrides the default outbound fragment size ceiling.
func WithMaxFragmentSize(size int) FragmentingWriterOption {
	return func(w *FragmentingWriter) { w.MaxSize = size }
}

// WithMinFragmentSize overrides the default outbound fragment size floor.
func WithMinFragmentSize(size int) FragmentingWriterOption {
	return func(w *FragmentingWriter) { w.MinSize = size }
}
