package chat

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"chatcore/tools/errs"
	"chatcore/tools/safe"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ServeWS upgrades the request and runs the connection until it ends.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// 常见：非 WebSocket 请求/握手失败，upgrader 已回写错误
		s.log.Info("upgrade websocket", zap.Error(err))
		return
	}
	h := newWSHandle(ws, s.opts.WriteTimeout)

	userID, err := s.ident.Resolve(r)
	if err != nil {
		s.log.Info("reject anonymous socket", zap.String("remote", r.RemoteAddr), zap.Error(err))
		_ = h.Close(websocket.ClosePolicyViolation, "policy violation")
		return
	}

	// CONNECT goes out before the handle is reachable by pushes
	if err := h.Write(ConnectFrame(userID).Encode()); err != nil {
		s.log.Info("write connect frame", zap.String("user", userID), zap.Error(err))
		_ = h.Close(websocket.CloseInternalServerErr, "write failed")
		return
	}

	s.registry.Admit(userID, h)
	defer func() {
		s.registry.Evict(h)
		_ = h.Close(websocket.CloseNormalClosure, "")
	}()

	ws.SetReadLimit(s.opts.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	ws.SetPongHandler(func(string) error {
		_ = ws.SetReadDeadline(time.Now().Add(s.opts.PongWait))
		if s.heartbeat != nil {
			s.heartbeat(userID)
		}
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	safe.Go(s.log, "ws.pinger", func() { s.pinger(h, userID, done) })

	s.readLoop(r.Context(), userID, h, ws)
}

// ---- 读循环：出错即退出，由 ServeWS 收尾 ----
func (s *Server) readLoop(ctx context.Context, userID string, h *wsHandle, ws *websocket.Conn) {
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			var ne net.Error
			switch {
			case websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
				CloseSuperseded):
				s.log.Info("peer closed", zap.String("user", userID), zap.String("handle", h.ID()), zap.Error(err))
			case errors.As(err, &ne) && ne.Timeout():
				s.log.Info("read timeout", zap.String("user", userID), zap.String("handle", h.ID()), zap.Error(err))
			default:
				s.log.Info("read err", zap.String("user", userID), zap.String("handle", h.ID()), zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		s.handleFrame(ctx, userID, h, data)
	}
}

func (s *Server) handleFrame(ctx context.Context, userID string, h *wsHandle, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("frame handler panic", zap.String("user", userID), zap.Error(errs.ErrPanic(r)))
		}
	}()

	env, err := Decode(data)
	if err != nil {
		// 只打印简短样本
		sample := data
		if len(sample) > 256 {
			sample = sample[:256]
		}
		s.log.Info("drop frame", zap.String("user", userID), zap.Error(err),
			zap.ByteString("sample", sample), zap.Int("len", len(data)))
		return
	}

	reply, err := s.disp.Dispatch(ctx, userID, env)
	if err != nil {
		if env.Kind == KindMessage {
			reply = ErrorFrame(reason(err))
		} else {
			s.log.Info("drop frame", zap.String("user", userID), zap.String("kind", string(env.Kind)), zap.Error(err))
			return
		}
	}
	if reply == nil {
		return
	}
	if err := h.Write(reply.Encode()); err != nil {
		s.log.Debug("write reply", zap.String("user", userID), zap.Error(err))
	}
}

func (s *Server) pinger(h *wsHandle, userID string, done <-chan struct{}) {
	t := time.NewTicker(s.opts.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			if err := h.Ping(); err != nil {
				s.log.Debug("ping failed", zap.String("user", userID), zap.Error(err))
				_ = h.Close(websocket.CloseGoingAway, "ping failed")
				return
			}
		}
	}
}
