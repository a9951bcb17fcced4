package client

import "time"

// Config adjusts netconf session behaviour.
type Config struct {
	// HelloTimeout bounds how long session setup waits for the server hello.
	HelloTimeout time.Duration

	// DisableChunkedFraming stops the client advertising base:1.1, pinning
	// the session to end-of-message framing.
	DisableChunkedFraming bool
}

// DefaultConfig is used wherever the caller supplies no configuration.
// Unset Config fields are also resolved against it.
var DefaultConfig = &Config{HelloTimeout: 5 * time.Second}
