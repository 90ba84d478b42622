// Package local provides an in-process transfer service that copies files on
// the local filesystem. It backs haul's offline mode and gives the adapter
// layer a real service to run against in tests.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytehaul/bytehaul/internal/bufpool"
	"github.com/bytehaul/bytehaul/internal/registry"
	"github.com/bytehaul/bytehaul/pkg/transfer"
)

const copyChunkSize = 64 * 1024

type Service struct {
	destDir string
	logger  *slog.Logger
	table   *registry.Table
	pool    *bufpool.Pool

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	// afterChunk, when set, runs between chunk writes. Test seam for
	// deterministic mid-copy cancellation.
	afterChunk func()
}

var _ transfer.Service = (*Service)(nil)

func New(destDir string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		destDir: destDir,
		logger:  logger,
		table:   registry.NewTable(),
		pool:    bufpool.New(copyChunkSize),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Submit registers an upload of src and starts copying it into the
// destination directory in the background.
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

// Remove aborts an in-flight copy. Removing a finished request is a no-op.
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

	dst := filepath.Join(s.destDir, req.Name)
	sent, err := s.copyFile(ctx, req, src, dst)

	switch {
	case errors.Is(err, context.Canceled):
		os.Remove(dst)
		s.table.PublishStatus(transfer.StatusEvent{
			RequestID: req.ID,
			Status:    transfer.StatusCanceled,
			BytesSent: sent,
		})
	case err != nil:
		os.Remove(dst)
		s.logger.Warn("local copy failed", "request_id", req.ID, "error", err)
		s.table.PublishStatus(transfer.StatusEvent{
			RequestID:  req.ID,
			Status:     transfer.StatusFailed,
			BytesSent:  sent,
			ErrCode:    "io_error",
			ErrMessage: err.Error(),
		})
	default:
		s.table.PublishStatus(transfer.StatusEvent{
			RequestID:  req.ID,
			Status:     transfer.StatusCompleted,
			BytesSent:  sent,
			TotalBytes: req.Size,
			Location:   dst,
		})
	}
}

func (s *Service) copyFile(ctx context.Context, req *transfer.Request, src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	buf := s.pool.Get()
	defer s.pool.Put(buf)

	var sent int64
	for {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		n, rerr := in.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return sent, werr
			}
			sent += int64(n)
			s.table.PublishProgress(transfer.ProgressEvent{
				RequestID:  req.ID,
				BytesSent:  sent,
				TotalBytes: req.Size,
			})
			if s.afterChunk != nil {
				s.afterChunk()
			}
		}
		if rerr == io.EOF {
			return sent, nil
		}
		if rerr != nil {
			return sent, rerr
		}
	}
}
