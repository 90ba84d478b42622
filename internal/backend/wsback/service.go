// Package wsback implements the transfer service boundary over a WebSocket
// connection to a haul server. One connection carries one upload: an offer
// envelope, an accept, binary chunks, progress acks from the server, and a
// final done or error envelope.
package wsback

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytehaul/bytehaul/internal/registry"
	"github.com/bytehaul/bytehaul/pkg/protocol"
	"github.com/bytehaul/bytehaul/pkg/transfer"
)

type Service struct {
	serverURL string
	chunkSize int
	logger    *slog.Logger
	table     *registry.Table

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

var _ transfer.Service = (*Service)(nil)

func New(serverURL string, chunkSize int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		serverURL: serverURL,
		chunkSize: chunkSize,
		logger:    logger,
		table:     registry.NewTable(),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Submit registers an upload of src and starts streaming it to the server in
// the background.
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

// Remove aborts an in-flight upload. The run loop notices the canceled
// context, tells the server to discard the partial payload and publishes the
// canceled terminal status. Removing a finished request is a no-op.
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

	conn, err := dialUpload(ctx, s.serverURL, req, s.logger)
	if err != nil {
		if ctx.Err() != nil {
			s.canceled(req, 0)
			return
		}
		s.fail(req, 0, "connect_failed", err.Error())
		return
	}
	defer conn.close()

	offer, err := protocol.NewEnvelope(protocol.TypeUploadOffer, req.ID, protocol.UploadOffer{
		Name: req.Name,
		Size: req.Size,
	})
	if err != nil {
		s.fail(req, 0, "protocol_error", err.Error())
		return
	}
	if err := conn.writeJSON(offer); err != nil {
		s.fail(req, 0, "connection_lost", err.Error())
		return
	}

	// Server envelopes arrive on a dedicated reader; terminal ones land in
	// buffered channels so the reader never blocks on the sender.
	doneCh := make(chan protocol.UploadDone, 1)
	errCh := make(chan protocol.UploadError, 1)
	acceptCh := make(chan protocol.UploadAccept, 1)
	readErr := make(chan error, 1)

	readCtx, stopRead := context.WithCancel(ctx)
	defer stopRead()

	go func() {
		err := conn.readLoop(readCtx, func(env protocol.Envelope) {
			if err := env.ValidateBasic(); err != nil {
				s.logger.Warn("invalid envelope from server", "error", err)
				return
			}
			switch env.Type {
			case protocol.TypeUploadAccept:
				var accept protocol.UploadAccept
				if env.DecodePayload(&accept) == nil {
					select {
					case acceptCh <- accept:
					default:
					}
				}
			case protocol.TypeUploadProgress:
				var prog protocol.UploadProgress
				if env.DecodePayload(&prog) == nil {
					s.table.PublishProgress(transfer.ProgressEvent{
						RequestID:  req.ID,
						BytesSent:  prog.BytesReceived,
						TotalBytes: req.Size,
					})
				}
			case protocol.TypeUploadDone:
				var done protocol.UploadDone
				if env.DecodePayload(&done) == nil {
					select {
					case doneCh <- done:
					default:
					}
				}
			case protocol.TypeUploadError:
				var uerr protocol.UploadError
				if env.DecodePayload(&uerr) == nil {
					select {
					case errCh <- uerr:
					default:
					}
				}
			default:
				s.logger.Warn("unexpected envelope type from server", "type", env.Type)
			}
		})
		readErr <- err
	}()

	var accept protocol.UploadAccept
	select {
	case accept = <-acceptCh:
	case uerr := <-errCh:
		s.fail(req, 0, uerr.Code, uerr.Message)
		return
	case err := <-readErr:
		s.fail(req, 0, "connection_lost", errString(err))
		return
	case <-ctx.Done():
		s.abort(conn, req, 0)
		return
	case <-time.After(10 * time.Second):
		s.fail(req, 0, "accept_timeout", "server did not accept the upload")
		return
	}

	chunkSize := s.chunkSize
	if accept.ChunkSize > 0 && accept.ChunkSize < chunkSize {
		chunkSize = accept.ChunkSize
	}

	sent, err := s.sendFile(ctx, conn, src, chunkSize)
	if err != nil {
		if ctx.Err() != nil {
			s.abort(conn, req, sent)
			return
		}
		s.fail(req, sent, "io_error", err.Error())
		return
	}

	select {
	case done := <-doneCh:
		s.table.PublishStatus(transfer.StatusEvent{
			RequestID:  req.ID,
			Status:     transfer.StatusCompleted,
			BytesSent:  done.BytesReceived,
			TotalBytes: req.Size,
			Location:   done.Location,
		})
	case uerr := <-errCh:
		s.fail(req, sent, uerr.Code, uerr.Message)
	case err := <-readErr:
		s.fail(req, sent, "connection_lost", errString(err))
	case <-ctx.Done():
		s.abort(conn, req, sent)
	case <-time.After(30 * time.Second):
		s.fail(req, sent, "ack_timeout", "server did not confirm the upload")
	}
}

// abort tells the server to drop the partial upload and publishes the
// canceled terminal status.
func (s *Service) abort(conn *wsConn, req *transfer.Request, sent int64) {
	if env, err := protocol.NewEnvelope(protocol.TypeUploadRemove, req.ID, protocol.UploadRemove{Reason: "canceled"}); err == nil {
		if werr := conn.writeJSON(env); werr != nil {
			s.logger.Debug("remove envelope not delivered", "request_id", req.ID, "error", werr)
		}
	}
	s.canceled(req, sent)
}

func (s *Service) sendFile(ctx context.Context, conn *wsConn, src string, chunkSize int) (int64, error) {
	f, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	buf := make([]byte, chunkSize)
	var sent int64
	for {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		n, rerr := f.Read(buf)
		if n > 0 {
			if werr := conn.writeBinary(buf[:n]); werr != nil {
				return sent, werr
			}
			sent += int64(n)
		}
		if rerr == io.EOF {
			return sent, nil
		}
		if rerr != nil {
			return sent, rerr
		}
	}
}

func errString(err error) string {
	if err == nil {
		return "connection closed"
	}
	return err.Error()
}
