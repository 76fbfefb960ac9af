package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/subtrack/nativebridge/internal/logger"
)

const (
	// Default upper bound for a NATS invoke; scans are interactive and slow.
	defaultNATSInvokeTimeout = 2 * time.Minute
)

var subjectTokenReplacer = strings.NewReplacer(".", "_", "/", "_", " ", "_", "*", "_", ">", "_")

// NATSConn is the subset of *nats.Conn used by NATSServer.
type NATSConn interface {
	Subscribe(subject string, handler nats.MsgHandler) (unsubscribe func() error, err error)
	Publish(subject string, data []byte) error
}

type natsConnAdapter struct {
	nc *nats.Conn
}

// WrapNATSConn adapts a live NATS connection.
func WrapNATSConn(nc *nats.Conn) NATSConn {
	return natsConnAdapter{nc: nc}
}

func (a natsConnAdapter) Subscribe(subject string, handler nats.MsgHandler) (func() error, error) {
	sub, err := a.nc.Subscribe(subject, handler)
	if err != nil {
		return nil, err
	}
	return sub.Drain, nil
}

func (a natsConnAdapter) Publish(subject string, data []byte) error {
	return a.nc.Publish(subject, data)
}

type natsInvokeRequest struct {
	Channel   string          `json:"channel"`
	Method    string          `json:"method"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type natsListenRequest struct {
	Channel   string          `json:"channel"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type natsListenResponse struct {
	Status  ReplyStatus  `json:"status"`
	Subject string       `json:"subject,omitempty"`
	Error   *MethodError `json:"error,omitempty"`
}

// NATSServer exposes an engine over NATS request-reply.
//
// Subjects (with prefix P):
//
//	P.invoke   request {channel, method, arguments}  -> Reply
//	P.listen   request {channel, arguments}          -> {status, subject}
//	P.cancel   request {channel, arguments}          -> {status}
//	P.events.<channel-token>                         <- StreamMessage frames
//
// The NATS side acts as one stream consumer per channel.
type NATSServer struct {
	conn          NATSConn
	engine        *Engine
	prefix        string
	invokeTimeout time.Duration
	logger        *logger.Logger

	mu     sync.Mutex
	sinks  map[string]*natsSink
	unsubs []func() error
	wg     sync.WaitGroup
}

// NewNATSServer creates a server for engine. Returns nil if conn is nil.
func NewNATSServer(conn NATSConn, engine *Engine, prefix string, log *logger.Logger) *NATSServer {
	if conn == nil {
		return nil
	}
	return &NATSServer{
		conn:          conn,
		engine:        engine,
		prefix:        strings.TrimSuffix(prefix, "."),
		invokeTimeout: defaultNATSInvokeTimeout,
		logger:        log.WithComponent("bridge-nats"),
		sinks:         make(map[string]*natsSink),
	}
}

// EventSubject returns the subject events of channel are published on.
func (s *NATSServer) EventSubject(channel string) string {
	return s.prefix + ".events." + subjectTokenReplacer.Replace(channel)
}

// Start subscribes to the control subjects.
func (s *NATSServer) Start() error {
	handlers := map[string]nats.MsgHandler{
		s.prefix + ".invoke": s.handleInvoke,
		s.prefix + ".listen": s.handleListen,
		s.prefix + ".cancel": s.handleCancel,
	}

	for subject, handler := range handlers {
		unsub, err := s.conn.Subscribe(subject, handler)
		if err != nil {
			_ = s.Stop()
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		s.mu.Lock()
		s.unsubs = append(s.unsubs, unsub)
		s.mu.Unlock()
	}

	s.logger.Info("nats bridge started", slog.String("prefix", s.prefix))
	return nil
}

// Stop cancels every NATS stream consumer, drains subscriptions and waits for
// in-flight invokes.
func (s *NATSServer) Stop() error {
	s.mu.Lock()
	sinks := s.sinks
	s.sinks = make(map[string]*natsSink)
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	for channel, sink := range sinks {
		sink.markEnded()
		_ = s.engine.Cancel(channel, nil, sink)
	}

	var errs []error
	for _, unsub := range unsubs {
		if err := unsub(); err != nil {
			errs = append(errs, err)
		}
	}
	s.wg.Wait()

	s.logger.Info("nats bridge stopped")
	return errors.Join(errs...)
}

func (s *NATSServer) respond(reply string, v interface{}) {
	if reply == "" {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to marshal nats reply", slog.String("error", err.Error()))
		return
	}
	if err := s.conn.Publish(reply, data); err != nil {
		s.logger.Warn("failed to publish nats reply",
			slog.String("subject", reply),
			slog.String("error", err.Error()))
	}
}

func (s *NATSServer) handleInvoke(msg *nats.Msg) {
	var req natsInvokeRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.Channel == "" || req.Method == "" {
		s.respond(msg.Reply, Reply{
			Status: StatusError,
			Error:  &MethodError{Code: CodeBadArguments, Message: "invoke requires channel and method"},
		})
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.invokeTimeout)
		defer cancel()
		ctx = logger.WithRequestID(ctx, logger.GenerateRequestID())

		call := MethodCall{Method: req.Method, Arguments: req.Arguments}
		reply, err := s.engine.Invoke(ctx, req.Channel, call).Wait(ctx)
		if err != nil {
			reply = Reply{
				Status: StatusError,
				Error:  &MethodError{Code: "TIMEOUT", Message: fmt.Sprintf("%s did not complete in time", req.Method)},
			}
		}
		s.respond(msg.Reply, reply)
	}()
}

func (s *NATSServer) handleListen(msg *nats.Msg) {
	var req natsListenRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.Channel == "" {
		s.respond(msg.Reply, natsListenResponse{
			Status: StatusError,
			Error:  &MethodError{Code: CodeBadArguments, Message: "listen requires channel"},
		})
		return
	}

	sink := &natsSink{conn: s.conn, subject: s.EventSubject(req.Channel), logger: s.logger}
	if err := s.engine.Listen(req.Channel, req.Arguments, sink); err != nil {
		status := StatusError
		var merr *MethodError
		if errors.Is(err, ErrNotImplemented) {
			status = StatusNotImplemented
		} else {
			merr = &MethodError{Code: "LISTEN_FAILED", Message: err.Error()}
		}
		s.respond(msg.Reply, natsListenResponse{Status: status, Error: merr})
		return
	}

	s.mu.Lock()
	s.sinks[req.Channel] = sink
	s.mu.Unlock()

	s.logger.Info("nats stream consumer attached",
		slog.String("channel", req.Channel),
		slog.String("subject", sink.subject))
	s.respond(msg.Reply, natsListenResponse{Status: StatusOK, Subject: sink.subject})
}

func (s *NATSServer) handleCancel(msg *nats.Msg) {
	var req natsListenRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.Channel == "" {
		s.respond(msg.Reply, natsListenResponse{
			Status: StatusError,
			Error:  &MethodError{Code: CodeBadArguments, Message: "cancel requires channel"},
		})
		return
	}

	s.mu.Lock()
	sink, ok := s.sinks[req.Channel]
	delete(s.sinks, req.Channel)
	s.mu.Unlock()

	if ok {
		sink.markEnded()
		if err := s.engine.Cancel(req.Channel, req.Arguments, sink); err != nil {
			s.logger.Debug("nats cancel failed", slog.String("error", err.Error()))
		}
	}
	s.respond(msg.Reply, natsListenResponse{Status: StatusOK})
}

// natsSink publishes stream frames to a fixed subject.
type natsSink struct {
	conn    NATSConn
	subject string
	logger  *logger.Logger

	mu    sync.Mutex
	ended bool
}

func (s *natsSink) publish(msg StreamMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("failed to marshal stream frame", slog.String("error", err.Error()))
		return
	}
	if err := s.conn.Publish(s.subject, data); err != nil {
		s.logger.Warn("failed to publish stream frame",
			slog.String("subject", s.subject),
			slog.String("error", err.Error()))
	}
}

func (s *natsSink) Success(event interface{}) {
	s.publish(StreamMessage{Type: "event", Event: event})
}

func (s *natsSink) Error(code, message string, details interface{}) {
	s.publish(StreamMessage{Type: "error", Error: &MethodError{Code: code, Message: message, Details: details}})
}

func (s *natsSink) EndOfStream() {
	s.publish(StreamMessage{Type: "end"})
	s.markEnded()
}

func (s *natsSink) markEnded() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
}
