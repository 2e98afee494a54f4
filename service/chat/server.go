package chat

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Identifier resolves the authenticated user of an upgrade request.
type Identifier interface {
	Resolve(r *http.Request) (string, error)
}

type ServerOptions struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	PongWait     time.Duration
	ReadLimit    int64
}

func (o *ServerOptions) norm() {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 << 10
	}
}

// Server is the websocket endpoint: one read loop and one pinger per socket.
type Server struct {
	registry  *Registry
	disp      *Dispatcher
	ident     Identifier
	heartbeat func(userID string)
	opts      ServerOptions
	upgrader  websocket.Upgrader
	log       *zap.Logger
}

func NewServer(registry *Registry, disp *Dispatcher, ident Identifier, opts ServerOptions, log *zap.Logger) *Server {
	opts.norm()
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		registry: registry,
		disp:     disp,
		ident:    ident,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// OnHeartbeat is called with the user id whenever a pong arrives.
func (s *Server) OnHeartbeat(fn func(userID string)) { s.heartbeat = fn }

// HandleWS is the gin route for the socket endpoint.
func (s *Server) HandleWS(c *gin.Context) {
	s.ServeWS(c.Writer, c.Request)
}
