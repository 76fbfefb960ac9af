package bridge

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	apierrors "github.com/subtrack/nativebridge/internal/errors"
	"github.com/subtrack/nativebridge/internal/logger"
)

const requestIDHeader = "X-Request-ID"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is enforced by the outer handler
	},
}

// EngineResolver maps an engine name from the URL to a live engine.
// It returns nil when the engine does not exist (yet).
type EngineResolver func(name string) *Engine

// RegisterRoutes mounts the invoke and listen endpoints on group.
//
//	POST /engines/:engine/invoke/*channel   body: MethodCall, response: Reply
//	GET  /engines/:engine/listen/*channel   websocket stream of StreamMessage
func RegisterRoutes(group *gin.RouterGroup, resolve EngineResolver, log *logger.Logger, writeTimeout time.Duration) {
	group.POST("/engines/:engine/invoke/*channel", InvokeHandler(resolve, log))
	group.GET("/engines/:engine/listen/*channel", ListenHandler(resolve, log, writeTimeout))
}

// RequestID tags every request context with an ID, reusing the caller's header when present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = logger.GenerateRequestID()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func channelParam(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("channel"), "/")
}

// InvokeHandler answers a single method call and waits for its resolution.
func InvokeHandler(resolve EngineResolver, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		l := log.WithContext(ctx).WithComponent("bridge-http")

		engine := resolve(c.Param("engine"))
		if engine == nil {
			apierrors.AbortWithUnavailable(c, "ENGINE_UNAVAILABLE", "engine is not running",
				map[string]interface{}{"engine": c.Param("engine")})
			return
		}

		channel := channelParam(c)
		if channel == "" {
			apierrors.AbortWithBadRequest(c, "channel is required", nil)
			return
		}

		var call MethodCall
		if err := c.ShouldBindJSON(&call); err != nil {
			apierrors.AbortWithBadRequest(c, "invalid method call", map[string]interface{}{"reason": err.Error()})
			return
		}
		if call.Method == "" {
			apierrors.AbortWithBadRequest(c, "method is required", nil)
			return
		}

		reply, err := engine.Invoke(ctx, channel, call).Wait(ctx)
		if err != nil {
			l.Warn("caller went away before the reply",
				slog.String("channel", channel),
				slog.String("method", call.Method),
				slog.String("error", err.Error()))
			return
		}

		status := http.StatusOK
		if reply.Status == StatusNotImplemented {
			status = http.StatusNotImplemented
		}
		c.JSON(status, reply)
	}
}

// StreamMessage is one frame written to a stream consumer.
type StreamMessage struct {
	Type  string       `json:"type"` // event, error, end, not_implemented
	Event interface{}  `json:"event,omitempty"`
	Error *MethodError `json:"error,omitempty"`
}

// ListenHandler upgrades to a websocket and streams the channel's events until
// either side closes. Closing the socket cancels the subscription.
func ListenHandler(resolve EngineResolver, log *logger.Logger, writeTimeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		l := log.WithContext(c.Request.Context()).WithComponent("bridge-ws")

		engine := resolve(c.Param("engine"))
		if engine == nil {
			apierrors.AbortWithUnavailable(c, "ENGINE_UNAVAILABLE", "engine is not running",
				map[string]interface{}{"engine": c.Param("engine")})
			return
		}
		channel := channelParam(c)

		var args json.RawMessage
		if raw := c.Query("arguments"); raw != "" {
			if !json.Valid([]byte(raw)) {
				apierrors.AbortWithBadRequest(c, "arguments must be valid JSON", nil)
				return
			}
			args = json.RawMessage(raw)
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			l.Error("failed to upgrade connection to websocket", slog.String("error", err.Error()))
			return
		}
		defer conn.Close()

		sink := newWebSocketSink(conn, writeTimeout, l)
		if err := engine.Listen(channel, args, sink); err != nil {
			if errors.Is(err, ErrNotImplemented) {
				sink.write(StreamMessage{Type: "not_implemented"})
			} else {
				sink.Error("LISTEN_FAILED", err.Error(), nil)
			}
			sink.EndOfStream()
			return
		}

		l.Info("stream consumer attached", slog.String("channel", channel))

		// Drain client frames until the socket closes; consumers never send data.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		sink.markEnded()
		if err := engine.Cancel(channel, args, sink); err != nil {
			l.Debug("cancel after disconnect failed", slog.String("error", err.Error()))
		}
		l.Info("stream consumer detached", slog.String("channel", channel))
	}
}

// webSocketSink writes stream frames to a websocket connection.
type webSocketSink struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	logger       *logger.Logger

	mu    sync.Mutex
	ended bool
}

func newWebSocketSink(conn *websocket.Conn, writeTimeout time.Duration, log *logger.Logger) *webSocketSink {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &webSocketSink{conn: conn, writeTimeout: writeTimeout, logger: log}
}

func (s *webSocketSink) write(msg StreamMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := s.conn.WriteJSON(msg); err != nil {
		s.logger.Warn("failed to write stream frame",
			slog.String("type", msg.Type),
			slog.String("error", err.Error()))
	}
}

func (s *webSocketSink) Success(event interface{}) {
	s.write(StreamMessage{Type: "event", Event: event})
}

func (s *webSocketSink) Error(code, message string, details interface{}) {
	s.write(StreamMessage{Type: "error", Error: &MethodError{Code: code, Message: message, Details: details}})
}

// EndOfStream tells the consumer no more events will follow and closes the socket.
func (s *webSocketSink) EndOfStream() {
	s.write(StreamMessage{Type: "end"})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream ended"),
		time.Now().Add(s.writeTimeout))
	_ = s.conn.Close()
}

func (s *webSocketSink) markEnded() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
}
