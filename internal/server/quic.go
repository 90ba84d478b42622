package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/quic-go/quic-go"

	"github.com/bytehaul/bytehaul/pkg/protocol"
)

// ServeQUIC accepts QUIC connections until ctx is done or the listener
// closes. Each stream carries one upload.
func (s *Server) ServeQUIC(ctx context.Context, listener *quic.Listener) error {
	for {
		conn, err := listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		s.logger.Info("QUIC connection accepted", "remote_addr", conn.RemoteAddr())
		go s.serveQUICConn(ctx, conn)
	}
}

func (s *Server) serveQUICConn(ctx context.Context, conn *quic.Conn) {
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return
		}
		go s.handleQUICStream(stream)
	}
}

// handleQUICStream runs one upload: JSON header line, raw payload, JSON
// status line back.
func (s *Server) handleQUICStream(stream *quic.Stream) {
	defer stream.Close()

	reader := bufio.NewReader(stream)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		s.logger.Warn("quic stream header not readable", "error", err)
		return
	}

	var header protocol.StreamHeader
	if err := json.Unmarshal(line, &header); err != nil {
		s.writeStreamStatus(stream, protocol.StreamStatus{
			Code: "bad_header", Message: err.Error(),
		})
		return
	}
	if header.Name == "" || len(header.Name) > maxNameLength || header.Size < 0 {
		s.writeStreamStatus(stream, protocol.StreamStatus{
			Code: "bad_header", Message: "invalid name or size",
		})
		return
	}

	s.logger.Info("quic upload started", "upload_id", header.UploadID, "name", header.Name, "size", header.Size)

	received, location, err := s.receiveQUICPayload(reader, header)
	if err != nil {
		s.logger.Warn("quic upload failed", "upload_id", header.UploadID, "received", received, "error", err)
		s.writeStreamStatus(stream, protocol.StreamStatus{
			BytesReceived: received,
			Code:          "io_error",
			Message:       err.Error(),
		})
		return
	}

	s.writeStreamStatus(stream, protocol.StreamStatus{
		OK:            true,
		BytesReceived: received,
		Location:      location,
	})
	s.logger.Info("quic upload completed", "upload_id", header.UploadID, "location", location, "bytes", received)
}

func (s *Server) receiveQUICPayload(reader io.Reader, header protocol.StreamHeader) (int64, string, error) {
	name := filepath.Base(header.Name)
	finalPath := filepath.Join(s.dir, name)
	partPath := finalPath + ".part"

	out, err := os.Create(partPath)
	if err != nil {
		return 0, "", err
	}

	buf := s.pool.Get()
	received, err := io.CopyBuffer(out, io.LimitReader(reader, header.Size), buf)
	s.pool.Put(buf)
	if err != nil {
		out.Close()
		os.Remove(partPath)
		return received, "", err
	}
	if received != header.Size {
		// The client closed (or reset) the stream before delivering the
		// declared payload; treat it as an aborted upload.
		out.Close()
		os.Remove(partPath)
		return received, "", fmt.Errorf("received %d of %d bytes", received, header.Size)
	}
	if err := out.Close(); err != nil {
		os.Remove(partPath)
		return received, "", err
	}
	if err := os.Rename(partPath, finalPath); err != nil {
		os.Remove(partPath)
		return received, "", err
	}
	return received, finalPath, nil
}

func (s *Server) writeStreamStatus(stream *quic.Stream, status protocol.StreamStatus) {
	data, err := json.Marshal(status)
	if err != nil {
		return
	}
	if _, err := stream.Write(append(data, '\n')); err != nil {
		var appErr *quic.ApplicationError
		if !errors.As(err, &appErr) {
			s.logger.Debug("status line not delivered", "error", err)
		}
	}
}
