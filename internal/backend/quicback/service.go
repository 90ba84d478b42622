// Package quicback implements the transfer service boundary over QUIC. Each
// upload runs on its own stream: one JSON header line, the raw file bytes,
// then a JSON status line back from the server once the client half-closes.
package quicback

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/quic-go/quic-go"

	"github.com/bytehaul/bytehaul/internal/quicwire"
	"github.com/bytehaul/bytehaul/internal/registry"
	"github.com/bytehaul/bytehaul/pkg/protocol"
	"github.com/bytehaul/bytehaul/pkg/transfer"
)

const errCodeCanceled = quic.ApplicationErrorCode(0x10)

type Service struct {
	addr      string
	chunkSize int
	logger    *slog.Logger
	table     *registry.Table

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

var _ transfer.Service = (*Service)(nil)

// New creates a QUIC-backed service dialing addr (host:port, UDP).
func New(addr string, chunkSize int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		addr:      addr,
		chunkSize: chunkSize,
		logger:    logger,
		table:     registry.NewTable(),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Submit registers an upload of src and starts streaming it in the background.
func (s *Service) Submit(src string) (*transfer.Request, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", src, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", src)
	}

	req := &transfer.Request{
		ID:   registry.NewID(),
		Kind: transfer.KindUpload,
		Name: filepath.Base(src),
		Size: info.Size(),
	}
	s.table.Add(req)

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[req.ID] = cancel
	s.mu.Unlock()

	go s.run(ctx, req, src)
	return req, nil
}

func (s *Service) Lookup(id string) (*transfer.Request, bool) {
	return s.table.Lookup(id)
}

// Remove aborts an in-flight upload; the connection teardown tells the
// server to discard the partial payload. Removing a finished request is a
// no-op.
func (s *Service) Remove(ctx context.Context, req *transfer.Request) error {
	s.mu.Lock()
	cancel, ok := s.cancels[req.ID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

func (s *Service) SubscribeStatus(req *transfer.Request, fn func(transfer.StatusEvent)) transfer.Subscription {
	return s.table.SubscribeStatus(req, fn)
}

func (s *Service) SubscribeProgress(req *transfer.Request, fn func(transfer.ProgressEvent)) transfer.Subscription {
	return s.table.SubscribeProgress(req, fn)
}

func (s *Service) fail(req *transfer.Request, sent int64, code, message string) {
	s.table.PublishStatus(transfer.StatusEvent{
		RequestID:  req.ID,
		Status:     transfer.StatusFailed,
		BytesSent:  sent,
		TotalBytes: req.Size,
		ErrCode:    code,
		ErrMessage: message,
	})
}

func (s *Service) canceled(req *transfer.Request, sent int64) {
	s.table.PublishStatus(transfer.StatusEvent{
		RequestID:  req.ID,
		Status:     transfer.StatusCanceled,
		BytesSent:  sent,
		TotalBytes: req.Size,
	})
}

func (s *Service) run(ctx context.Context, req *transfer.Request, src string) {
	defer func() {
		s.mu.Lock()
		delete(s.cancels, req.ID)
		s.mu.Unlock()
	}()

	s.table.PublishStatus(transfer.StatusEvent{
		RequestID:  req.ID,
		Status:     transfer.StatusRunning,
		TotalBytes: req.Size,
	})

	conn, err := quicwire.Dial(ctx, s.addr, s.logger)
	if err != nil {
		if ctx.Err() != nil {
			s.canceled(req, 0)
			return
		}
		s.fail(req, 0, "connect_failed", err.Error())
		return
	}
	// The teardown signal doubles as the cancel signal: closing the
	// connection aborts the server-side receive.
	stop := context.AfterFunc(ctx, func() {
		conn.CloseWithError(errCodeCanceled, "canceled")
	})
	defer stop()
	defer conn.CloseWithError(0, "")

	sent, status, err := s.send(ctx, conn, req, src)
	switch {
	case ctx.Err() != nil:
		s.canceled(req, sent)
	case err != nil:
		s.fail(req, sent, "io_error", err.Error())
	case !status.OK:
		code := status.Code
		if code == "" {
			code = "transfer_failed"
		}
		s.fail(req, sent, code, status.Message)
	default:
		s.table.PublishStatus(transfer.StatusEvent{
			RequestID:  req.ID,
			Status:     transfer.StatusCompleted,
			BytesSent:  status.BytesReceived,
			TotalBytes: req.Size,
			Location:   status.Location,
		})
	}
}

func (s *Service) send(ctx context.Context, conn *quic.Conn, req *transfer.Request, src string) (int64, protocol.StreamStatus, error) {
	var status protocol.StreamStatus

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return 0, status, err
	}

	header, err := json.Marshal(protocol.StreamHeader{
		UploadID: req.ID,
		Name:     req.Name,
		Size:     req.Size,
	})
	if err != nil {
		return 0, status, err
	}
	if _, err := stream.Write(append(header, '\n')); err != nil {
		return 0, status, err
	}

	f, err := os.Open(src)
	if err != nil {
		return 0, status, err
	}
	defer f.Close()

	buf := make([]byte, s.chunkSize)
	var sent int64
	for {
		if err := ctx.Err(); err != nil {
			return sent, status, err
		}
		n, rerr := f.Read(buf)
		if n > 0 {
			if _, werr := stream.Write(buf[:n]); werr != nil {
				return sent, status, werr
			}
			sent += int64(n)
			s.table.PublishProgress(transfer.ProgressEvent{
				RequestID:  req.ID,
				BytesSent:  sent,
				TotalBytes: req.Size,
			})
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return sent, status, rerr
		}
	}

	// Half-close the write side; the server answers with one status line.
	if err := stream.Close(); err != nil {
		return sent, status, err
	}

	line, err := bufio.NewReader(stream).ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return sent, status, err
	}
	if err := json.Unmarshal(line, &status); err != nil {
		return sent, status, fmt.Errorf("malformed status line: %w", err)
	}
	return sent, status, nil
}
