package protocol

import (
	"encoding/json"
	"testing"
)

func TestNewEnvelope(t *testing.T) {
	tests := []struct {
		name     string
		msgType  string
		uploadID string
		payload  any
		wantErr  bool
	}{
		{
			name:     "UploadOffer message",
			msgType:  TypeUploadOffer,
			uploadID: "u1",
			payload: UploadOffer{
				Name: "backup.tar",
				Size: 1 << 20,
			},
			wantErr: false,
		},
		{
			name:     "UploadError message",
			msgType:  TypeUploadError,
			uploadID: "u2",
			payload: UploadError{
				Code:    "io_error",
				Message: "disk full",
			},
			wantErr: false,
		},
		{
			name:     "nil payload",
			msgType:  TypeUploadRemove,
			uploadID: "u3",
			payload:  nil,
			wantErr:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := NewEnvelope(tt.msgType, tt.uploadID, tt.payload)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewEnvelope() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil {
				return
			}

			if env.V != ProtocolVersion {
				t.Errorf("NewEnvelope() V = %d, want %d", env.V, ProtocolVersion)
			}
			if env.Type != tt.msgType {
				t.Errorf("NewEnvelope() Type = %s, want %s", env.Type, tt.msgType)
			}
			if env.UploadID != tt.uploadID {
				t.Errorf("NewEnvelope() UploadID = %s, want %s", env.UploadID, tt.uploadID)
			}
			if env.MsgID == "" {
				t.Error("NewEnvelope() MsgID is empty")
			}
			if err := env.ValidateBasic(); err != nil {
				t.Errorf("ValidateBasic() = %v", err)
			}
		})
	}
}

func TestEnvelope_JSONRoundTrip(t *testing.T) {
	env, err := NewEnvelope(TypeUploadDone, "u9", UploadDone{
		BytesReceived: 4096,
		Location:      "recv/backup.tar",
	})
	if err != nil {
		t.Fatalf("NewEnvelope() error = %v", err)
	}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded Envelope
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded.Type != TypeUploadDone || decoded.UploadID != "u9" {
		t.Errorf("round trip changed envelope: %+v", decoded)
	}

	var done UploadDone
	if err := decoded.DecodePayload(&done); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if done.BytesReceived != 4096 || done.Location != "recv/backup.tar" {
		t.Errorf("round trip changed payload: %+v", done)
	}
}

func TestEnvelope_DecodePayloadEmpty(t *testing.T) {
	env := Envelope{V: ProtocolVersion, Type: TypeUploadRemove, MsgID: NewMsgID()}
	var out UploadRemove
	if err := env.DecodePayload(&out); err == nil {
		t.Error("expected error decoding empty payload")
	}
}

func TestValidateBasic(t *testing.T) {
	tests := []struct {
		name    string
		env     Envelope
		wantErr bool
	}{
		{"valid", Envelope{V: ProtocolVersion, Type: TypeUploadOffer, MsgID: "m1"}, false},
		{"wrong version", Envelope{V: 99, Type: TypeUploadOffer, MsgID: "m1"}, true},
		{"missing type", Envelope{V: ProtocolVersion, MsgID: "m1"}, true},
		{"missing msg_id", Envelope{V: ProtocolVersion, Type: TypeUploadOffer}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.env.ValidateBasic(); (err != nil) != tt.wantErr {
				t.Errorf("ValidateBasic() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewMsgID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewMsgID()
		if len(id) != 16 {
			t.Fatalf("NewMsgID() length = %d, want 16", len(id))
		}
		if seen[id] {
			t.Fatalf("NewMsgID() produced duplicate %s", id)
		}
		seen[id] = true
	}
}
