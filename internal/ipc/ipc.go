// Package ipc implements the IPC listener (C10): a local-domain
// socket accepting newline-delimited JSON requests and dispatching
// them against the other components.
package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"cronbridge"
	"cronbridge/internal/refresh"
	"cronbridge/internal/schedindex"
	"cronbridge/internal/workqueue"
)

// request is the wire schema from spec §4.9.
type request struct {
	RequestType    string          `json:"request_type"`
	RequestContent json.RawMessage `json:"request_content"`
}

type scheduleIDContent struct {
	ScheduleID string `json:"schedule_id"`
}

// Server is the IPC listener.
type Server struct {
	SocketPath string
	GroupOwner string

	Queue    *workqueue.Queue
	Index    *schedindex.Index
	Source   cronbridge.SourceReader
	Fetcher  cronbridge.PayloadFetcher
	Enqueuer cronbridge.QueueEnqueuer
	Refresh  *refresh.Worker

	Log zerolog.Logger
}

// New returns a ready-to-use IPC server.
func New(socketPath, groupOwner string, q *workqueue.Queue, idx *schedindex.Index,
	src cronbridge.SourceReader, fetch cronbridge.PayloadFetcher, enq cronbridge.QueueEnqueuer,
	rf *refresh.Worker, log zerolog.Logger) *Server {
	return &Server{
		SocketPath: socketPath,
		GroupOwner: groupOwner,
		Queue:      q,
		Index:      idx,
		Source:     src,
		Fetcher:    fetch,
		Enqueuer:   enq,
		Refresh:    rf,
		Log:        log.With().Str("component", "ipc").Logger(),
	}
}

// Run binds the socket and serves connections until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	_ = os.Remove(s.SocketPath)
	ln, err := net.Listen("unix", s.SocketPath)
	if err != nil {
		return fmt.Errorf("cronbridge: binding ipc socket %s: %w", s.SocketPath, err)
	}
	defer ln.Close()

	if err := os.Chmod(s.SocketPath, 0660); err != nil {
		return fmt.Errorf("cronbridge: chmod ipc socket: %w", err)
	}
	if s.GroupOwner != "" {
		if err := chownGroup(s.SocketPath, s.GroupOwner); err != nil {
			s.Log.Warn().Err(err).Str("group", s.GroupOwner).Msg("could not set socket group owner")
		}
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.Log.Warn().Err(err).Msg("accept failed")
			continue
		}
		go s.handle(ctx, conn)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	corrID := uuid.New().String()
	log := s.Log.With().Str("correlation_id", corrID).Logger()

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		return
	}

	var req request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		log.Debug().Err(err).Msg("malformed request")
		writeLine(conn, "error: bad_request")
		return
	}

	resp, err := s.dispatch(ctx, req)
	if err != nil {
		log.Warn().Err(err).Str("request_type", req.RequestType).Msg("request failed")
		writeJSON(conn, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(conn, resp)
}

var errUnknownRequestType = errors.New("unknown request_type")

func (s *Server) dispatch(ctx context.Context, req request) (any, error) {
	switch req.RequestType {
	case "ping":
		return "pong", nil

	case "reload_schedule":
		var c scheduleIDContent
		if err := json.Unmarshal(req.RequestContent, &c); err != nil {
			return nil, fmt.Errorf("bad request_content: %w", err)
		}
		s.Queue.Push(c.ScheduleID)
		return "queued", nil

	case "remove_schedule":
		var c scheduleIDContent
		if err := json.Unmarshal(req.RequestContent, &c); err != nil {
			return nil, fmt.Errorf("bad request_content: %w", err)
		}
		if err := s.Enqueuer.CancelAllFor(ctx, c.ScheduleID); err != nil {
			return nil, err
		}
		s.Index.Remove(c.ScheduleID)
		return "removed", nil

	case "full_refresh":
		go s.Refresh.Once(ctx)
		return "refreshing", nil

	case "show_queue":
		return s.Queue.Snapshot(), nil

	case "show_schedule":
		return s.Index.Snapshot(), nil

	case "run_now":
		var c scheduleIDContent
		if err := json.Unmarshal(req.RequestContent, &c); err != nil {
			return nil, fmt.Errorf("bad request_content: %w", err)
		}
		if err := s.runNow(ctx, c.ScheduleID); err != nil {
			return nil, err
		}
		return "enqueued", nil

	default:
		return nil, fmt.Errorf("%w: %q", errUnknownRequestType, req.RequestType)
	}
}

// runNow enqueues a schedule's task immediately, bypassing C6 (spec
// §4.9: "fires_at_utc = now").
func (s *Server) runNow(ctx context.Context, id string) error {
	row, err := s.Source.ReadOne(ctx, id)
	if err != nil {
		return err
	}
	payload, err := s.Fetcher.FetchPayload(ctx, row.TaskID)
	if err != nil {
		return err
	}
	_, err = s.Enqueuer.EnqueueAt(ctx, id, row.QueueName, row.TaskID, payload, time.Now().UTC(), row.Hints())
	return err
}

func writeLine(conn net.Conn, s string) {
	fmt.Fprintln(conn, s)
}

func writeJSON(conn net.Conn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		writeLine(conn, "error: internal")
		return
	}
	conn.Write(b)
	conn.Write([]byte("\n"))
}

func chownGroup(path, groupName string) error {
	g, err := user.LookupGroup(groupName)
	if err != nil {
		return err
	}
	gid, err := parseID(g.Gid)
	if err != nil {
		return err
	}
	return syscall.Chown(path, -1, gid)
}

func parseID(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}
