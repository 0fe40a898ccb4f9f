package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"log/slog"

	"postbox/internal/api"
	"postbox/internal/daemon"
	"postbox/internal/logging"
	"postbox/internal/queue"
	"postbox/internal/syncer"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path. The shutdown
// function is invoked when a client requests daemon stop.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, shutdown func(), logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, shutdown: shutdown, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Postbox", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually or rerun postbox daemon stop"))
	}
}

type service struct {
	daemon   *daemon.Daemon
	shutdown func()
	logger   *slog.Logger
	ctx      context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.Online = status.Online
	resp.Draining = status.Draining
	resp.PID = os.Getpid()
	resp.Queue = api.FromStats(status.Queue)
	resp.LastError = status.LastError
	resp.QueueDBPath = status.QueueDBPath
	resp.LockPath = status.LockFilePath
	if status.LastDrain != nil {
		resp.LastDrain = convertDrainSummary(*status.LastDrain)
	}
	return nil
}

func convertDrainSummary(summary syncer.DrainSummary) *api.DrainSummary {
	dto := api.DrainSummary{
		DrainID:   summary.DrainID,
		Attempted: summary.Attempted,
		Delivered: summary.Delivered,
		Failed:    summary.Failed,
		Flagged:   summary.Flagged,
	}
	if !summary.Started.IsZero() {
		dto.Started = summary.Started.Format(time.RFC3339)
	}
	if summary.Duration > 0 {
		dto.Duration = summary.Duration.Round(time.Millisecond).String()
	}
	return &dto
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	resp.Stopped = true
	if s.shutdown != nil {
		// Deferred so the RPC response reaches the client before the
		// listener goes away.
		go s.shutdown()
	}
	s.log().Info("daemon stop via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Submit(req SubmitRequest, resp *SubmitResponse) error {
	payload := queue.Payload{
		Intent:           req.Intent,
		Text:             req.Text,
		Latitude:         req.Latitude,
		Longitude:        req.Longitude,
		PostalCode:       req.PostalCode,
		Ward:             req.Ward,
		StructuredFields: req.StructuredFields,
		CitizenRef:       req.CitizenRef,
	}
	var att *queue.NewAttachment
	if len(req.AttachmentData) > 0 {
		att = &queue.NewAttachment{
			Name:      req.AttachmentName,
			MediaType: req.AttachmentType,
			Data:      req.AttachmentData,
		}
	}
	record, err := s.daemon.Enqueue(s.ctx, payload, att)
	if err != nil {
		return err
	}
	resp.Record = api.FromRecord(record)
	return nil
}

func (s *service) SyncNow(_ SyncNowRequest, resp *SyncNowResponse) error {
	s.log().Debug("manual sync requested")
	if err := s.daemon.RequestSync(); err != nil {
		return err
	}
	resp.Requested = true
	return nil
}

func (s *service) QueueList(req QueueListRequest, resp *QueueListResponse) error {
	statuses := make([]queue.Status, 0, len(req.Statuses))
	for _, status := range req.Statuses {
		parsed, ok := queue.ParseStatus(status)
		if !ok {
			return fmt.Errorf("unknown status %q", status)
		}
		statuses = append(statuses, parsed)
	}
	records, err := s.daemon.ListQueue(s.ctx, statuses)
	if err != nil {
		return err
	}
	resp.Records = make([]Record, 0, len(records))
	for _, record := range records {
		if record == nil {
			continue
		}
		resp.Records = append(resp.Records, api.FromRecord(record))
	}
	return nil
}

func (s *service) QueueShow(req QueueShowRequest, resp *QueueShowResponse) error {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return errors.New("record id is required")
	}
	record, err := s.daemon.GetRecord(s.ctx, id)
	if err != nil {
		return err
	}
	resp.Record = api.FromRecord(record)
	return nil
}

func (s *service) QueueClear(req QueueClearRequest, resp *QueueClearResponse) error {
	statuses := make([]queue.Status, 0, len(req.Statuses))
	for _, status := range req.Statuses {
		parsed, ok := queue.ParseStatus(status)
		if !ok {
			return fmt.Errorf("unknown status %q", status)
		}
		statuses = append(statuses, parsed)
	}
	s.log().Debug("queue clear requested")
	removed, err := s.daemon.ClearQueue(s.ctx, statuses)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("queue cleared",
		logging.String(logging.FieldEventType, "queue_clear"),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) QueuePrune(req QueuePruneRequest, resp *QueuePruneResponse) error {
	if req.OlderThanDays < 0 {
		return errors.New("prune age must not be negative")
	}
	pruned, err := s.daemon.PruneSynced(s.ctx, time.Duration(req.OlderThanDays)*24*time.Hour)
	if err != nil {
		return err
	}
	resp.Pruned = pruned
	s.log().Info("delivered records pruned",
		logging.String(logging.FieldEventType, "queue_prune"),
		logging.Int64("pruned_count", pruned))
	return nil
}

func (s *service) RetryFlagged(req RetryFlaggedRequest, resp *RetryFlaggedResponse) error {
	s.log().Debug("retry flagged requested", logging.Int("record_count", len(req.IDs)))
	updated, err := s.daemon.RetryFlagged(s.ctx, req.IDs)
	if err != nil {
		return err
	}
	resp.Updated = updated
	s.log().Info("flagged records requeued",
		logging.String(logging.FieldEventType, "queue_retry"),
		logging.Int64("updated_count", updated))
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	if err != nil && health.Error == "" {
		return err
	}
	resp.DBPath = health.DBPath
	resp.DatabaseExists = health.DatabaseExists
	resp.DatabaseReadable = health.DatabaseReadable
	resp.TableExists = health.TableExists
	resp.IntegrityCheck = health.IntegrityCheck
	resp.TotalRecords = health.TotalRecords
	resp.Error = health.Error
	if err != nil {
		return err
	}
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
