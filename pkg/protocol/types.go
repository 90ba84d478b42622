package protocol

// Message type constants for protocol envelopes.
const (
	TypeUploadOffer    = "upload_offer"
	TypeUploadAccept   = "upload_accept"
	TypeUploadProgress = "upload_progress"
	TypeUploadDone     = "upload_done"
	TypeUploadError    = "upload_error"
	TypeUploadRemove   = "upload_remove"
)

// ALPNProtocol is the Application-Layer Protocol Negotiation identifier for
// bytehaul QUIC uploads.
const ALPNProtocol = "bytehaul-quic-v1"
