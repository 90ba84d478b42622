package protocol

// UploadOffer announces an upload before any file bytes are sent.
type UploadOffer struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// UploadAccept is the server's go-ahead for an offered upload.
type UploadAccept struct {
	// ChunkSize is the server's preferred binary message size in bytes.
	// Clients may send smaller chunks; larger ones are rejected.
	ChunkSize int `json:"chunk_size"`
}

// UploadProgress acknowledges received bytes back to the client.
type UploadProgress struct {
	BytesReceived int64 `json:"bytes_received"`
	TotalBytes    int64 `json:"total_bytes"`
}

// UploadDone reports a completed upload.
type UploadDone struct {
	BytesReceived int64  `json:"bytes_received"`
	Location      string `json:"location"`
}

// UploadError reports a failed upload. The stream is closed after it.
type UploadError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// UploadRemove asks the server to abort an in-flight upload and discard any
// partial payload.
type UploadRemove struct {
	Reason string `json:"reason,omitempty"`
}

// StreamHeader opens a QUIC upload stream: one JSON line, then raw file
// bytes until the client half-closes the stream.
type StreamHeader struct {
	UploadID string `json:"upload_id"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
}

// StreamStatus is the server's single JSON line answer on a QUIC upload
// stream, written after the payload has been drained.
type StreamStatus struct {
	OK            bool   `json:"ok"`
	BytesReceived int64  `json:"bytes_received"`
	Location      string `json:"location,omitempty"`
	Code          string `json:"code,omitempty"`
	Message       string `json:"message,omitempty"`
}
