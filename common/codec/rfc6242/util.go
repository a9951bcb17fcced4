package rfc6242

// SetChunkedFraming enables chunked framing mode on any non-nil *Decoder
// and *Encoder objects passed to it.
func SetChunkedFraming(objects ...interface{}) {
	for _, obj := range objects {
		switch o := obj.(type) {
		case *Decoder:
			if o != nil {
				o.setFramer(decoderChunked)
			}
		case *Encoder:
			if o != nil {
				o.ChunkedFraming = true
			}
		}
	}
}

// ClearChunkedFraming disables chunked framing mode on any non-nil *Decoder
// and *Encoder objects passed to it, reverting to end-of-message framing.
func ClearChunkedFraming(objects ...interface{}) {
	for _, obj := range objects {
		switch o := obj.(type) {
		case *Decoder:
			if o != nil {
				o.framer = decoderEndOfMessage
			}
		case *Encoder:
			if o != nil {
				o.ChunkedFraming = false
			}
		}
	}
}
