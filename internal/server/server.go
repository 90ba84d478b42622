// Package server implements the receiving side of haulserv: a WebSocket
// upload endpoint and a QUIC stream acceptor, both writing completed uploads
// into a receive directory.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/websocket"

	"github.com/bytehaul/bytehaul/internal/bufpool"
	"github.com/bytehaul/bytehaul/pkg/protocol"
)

const (
	defaultChunkSize = 256 * 1024
	maxNameLength    = 255
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

type Server struct {
	dir       string
	chunkSize int
	logger    *slog.Logger
	pool      *bufpool.Pool
}

func New(dir string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		dir:       dir,
		chunkSize: defaultChunkSize,
		logger:    logger,
		pool:      bufpool.New(defaultChunkSize),
	}
}

// HandleHealth answers liveness probes.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintln(w, `{"ok":true}`)
}

// HandleUpload runs one WebSocket upload: offer, accept, binary chunks with
// progress acks, and a final done or error envelope.
func (s *Server) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	uploadID := r.URL.Query().Get("upload_id")
	if uploadID == "" {
		uploadID = protocol.NewMsgID()
	}

	offer, err := s.readOffer(conn)
	if err != nil {
		s.logger.Warn("upload offer rejected", "upload_id", uploadID, "error", err)
		s.sendError(conn, uploadID, "bad_offer", err.Error())
		return
	}

	accept, err := protocol.NewEnvelope(protocol.TypeUploadAccept, uploadID, protocol.UploadAccept{
		ChunkSize: s.chunkSize,
	})
	if err != nil {
		return
	}
	if err := conn.WriteJSON(accept); err != nil {
		return
	}

	s.logger.Info("upload started", "upload_id", uploadID, "name", offer.Name, "size", offer.Size)
	s.receive(conn, uploadID, offer)
}

// readOffer reads and validates the initial offer envelope.
func (s *Server) readOffer(conn *websocket.Conn) (protocol.UploadOffer, error) {
	var offer protocol.UploadOffer

	messageType, message, err := conn.ReadMessage()
	if err != nil {
		return offer, err
	}
	if messageType != websocket.TextMessage {
		return offer, fmt.Errorf("expected offer envelope, got message type %d", messageType)
	}

	var env protocol.Envelope
	if err := unmarshalEnvelope(message, &env); err != nil {
		return offer, err
	}
	if env.Type != protocol.TypeUploadOffer {
		return offer, fmt.Errorf("expected %s, got %s", protocol.TypeUploadOffer, env.Type)
	}
	if err := env.DecodePayload(&offer); err != nil {
		return offer, err
	}
	if offer.Name == "" || len(offer.Name) > maxNameLength {
		return offer, fmt.Errorf("invalid upload name")
	}
	if offer.Size < 0 {
		return offer, fmt.Errorf("invalid upload size %d", offer.Size)
	}
	return offer, nil
}

// receive drains binary chunks into a partial file, acking progress per
// message, and finalizes or discards the payload.
func (s *Server) receive(conn *websocket.Conn, uploadID string, offer protocol.UploadOffer) {
	// Base-name only so a crafted offer cannot escape the receive dir.
	name := filepath.Base(offer.Name)
	finalPath := filepath.Join(s.dir, name)
	partPath := finalPath + ".part"

	out, err := os.Create(partPath)
	if err != nil {
		s.sendError(conn, uploadID, "io_error", err.Error())
		return
	}
	discard := func() {
		out.Close()
		os.Remove(partPath)
	}

	var received int64
	for received < offer.Size {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			s.logger.Warn("upload connection lost", "upload_id", uploadID, "received", received)
			discard()
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			if _, err := out.Write(message); err != nil {
				discard()
				s.sendError(conn, uploadID, "io_error", err.Error())
				return
			}
			received += int64(len(message))
			if received > offer.Size {
				discard()
				s.sendError(conn, uploadID, "size_mismatch",
					fmt.Sprintf("received %d bytes, offered %d", received, offer.Size))
				return
			}
			s.ackProgress(conn, uploadID, received, offer.Size)

		case websocket.TextMessage:
			var env protocol.Envelope
			if err := unmarshalEnvelope(message, &env); err != nil {
				s.logger.Warn("invalid envelope during upload", "upload_id", uploadID, "error", err)
				continue
			}
			if env.Type == protocol.TypeUploadRemove {
				s.logger.Info("upload removed by client", "upload_id", uploadID, "received", received)
				discard()
				return
			}
			s.logger.Warn("unexpected envelope during upload", "upload_id", uploadID, "type", env.Type)
		}
	}

	if err := out.Close(); err != nil {
		os.Remove(partPath)
		s.sendError(conn, uploadID, "io_error", err.Error())
		return
	}
	if err := os.Rename(partPath, finalPath); err != nil {
		os.Remove(partPath)
		s.sendError(conn, uploadID, "io_error", err.Error())
		return
	}

	done, err := protocol.NewEnvelope(protocol.TypeUploadDone, uploadID, protocol.UploadDone{
		BytesReceived: received,
		Location:      finalPath,
	})
	if err == nil {
		conn.WriteJSON(done)
	}
	s.logger.Info("upload completed", "upload_id", uploadID, "location", finalPath, "bytes", received)
}

func (s *Server) ackProgress(conn *websocket.Conn, uploadID string, received, total int64) {
	env, err := protocol.NewEnvelope(protocol.TypeUploadProgress, uploadID, protocol.UploadProgress{
		BytesReceived: received,
		TotalBytes:    total,
	})
	if err != nil {
		return
	}
	if err := conn.WriteJSON(env); err != nil {
		s.logger.Debug("progress ack not delivered", "upload_id", uploadID, "error", err)
	}
}

func unmarshalEnvelope(data []byte, env *protocol.Envelope) error {
	if err := json.Unmarshal(data, env); err != nil {
		return err
	}
	return env.ValidateBasic()
}

func (s *Server) sendError(conn *websocket.Conn, uploadID, code, message string) {
	env, err := protocol.NewEnvelope(protocol.TypeUploadError, uploadID, protocol.UploadError{
		Code:    code,
		Message: message,
	})
	if err != nil {
		return
	}
	conn.WriteJSON(env)
}
