package rfc6242

import "io"

// FragmentingWriter decorates an io.Writer, splitting each Write into
// fragments no larger than MaxSize. If the final fragment of a Write would
// otherwise fall below MinSize, it borrows bytes from the fragment ahead of
// it so that no fragment smaller than MinSize is ever written; a Write
// entirely below MinSize is padded out to the floor with '\n' instead.
//
// This is independent of, and sits beneath, RFC6242 chunk-length framing:
// an Encoder with ChunkedFraming enabled still writes one "\n#<n>\n" header
// per chunk it produces, but each of its underlying Output.Write calls may
// itself be split further by a FragmentingWriter.
type FragmentingWriter struct {
	Output io.Writer
	// MaxSize is the largest fragment this writer will hand to Output in a
	// single call. Zero selects DefaultMaxChunkSize. A MaxSize below twice
	// MinSize is raised to twice MinSize.
	MaxSize int
	// MinSize is the smallest fragment this writer will hand to Output,
	// short of the write itself being smaller. Negative is treated as zero.
	MinSize int
}

// NewFragmentingWriter wraps output with the default fragment size bounds.
func NewFragmentingWriter(output io.Writer, opts ...FragmentingWriterOption) *FragmentingWriter {
	w := &FragmentingWriter{Output: output, MaxSize: DefaultMaxChunkSize, MinSize: DefaultMinSendSize}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write implements io.Writer, fragmenting b across one or more writes to Output.
func (w *FragmentingWriter) Write(b []byte) (int, error) {
	for _, fragment := range chunkit(b, w.maxSize(), w.minSize()) {
		if _, err := w.Output.Write(fragment); err != nil {
			return 0, err
		}
	}
	return len(b), nil
}

func (w *FragmentingWriter) maxSize() int {
	if w.MaxSize <= 0 {
		return DefaultMaxChunkSize
	}
	return w.MaxSize
}

func (w *FragmentingWriter) minSize() int {
	if w.MinSize < 0 {
		return 0
	}
	return w.MinSize
}

// chunkit splits msg into fragments of at most maxSend bytes, each at least
// minSend bytes (short of the whole message being smaller, in which case it
// is padded). A maxSend below 2*minSend is raised to 2*minSend.
func chunkit(msg []byte, maxSend, minSend int) [][]byte {
	sz := len(msg)
	if sz == 0 {
		return nil
	}
	if maxSend < 2*minSend {
		maxSend = 2 * minSend
		if maxSend == 0 {
			maxSend = sz
		}
	}

	nchunks := sz / maxSend
	lastmax := sz % maxSend

	if nchunks == 1 && lastmax == 0 {
		return [][]byte{msg}
	}
	if nchunks == 0 {
		if lastmax < minSend {
			padded := make([]byte, minSend)
			copy(padded, msg)
			for i := lastmax; i < minSend; i++ {
				padded[i] = '\n'
			}
			return [][]byte{padded}
		}
		return [][]byte{msg}
	}

	nchunks--
	penultmax := maxSend
	if lastmax == 0 {
		nchunks--
	} else if lastmax < minSend {
		penultmax -= minSend - lastmax
	}

	chunks := make([][]byte, 0, nchunks+2)
	left := 0
	for i := 0; i < nchunks; i++ {
		chunks = append(chunks, msg[left:left+maxSend])
		left += maxSend
	}
	right := left + penultmax
	chunks = append(chunks, msg[left:right])
	chunks = append(chunks, msg[right:])
	return chunks
}
