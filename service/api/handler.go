package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	mid "chatcore/middleware"
	"chatcore/middleware/security"
	"chatcore/module/chat/model"
	"chatcore/module/chat/service"
	"chatcore/service/chat"
	"chatcore/tools/errs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const ServiceName = "chat-service"

// PresenceLookup answers for users connected to other nodes.
type PresenceLookup interface {
	Lookup(ctx context.Context, user string) (node string, online bool, err error)
}

type Options struct {
	Node            string
	PageSizeDefault int
	PageSizeMax     int
	Timeout         time.Duration
}

// Handler serves the /chat REST routes.
type Handler struct {
	rooms    *service.RoomService
	disp     *chat.Dispatcher
	registry *chat.Registry
	presence PresenceLookup // 可为空，只看本机
	opts     Options
	log      *zap.Logger
}

func NewHandler(rooms *service.RoomService, disp *chat.Dispatcher, registry *chat.Registry,
	presence PresenceLookup, opts Options, log *zap.Logger) *Handler {
	if opts.PageSizeDefault <= 0 {
		opts.PageSizeDefault = 50
	}
	if opts.PageSizeMax < opts.PageSizeDefault {
		opts.PageSizeMax = opts.PageSizeDefault
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{rooms: rooms, disp: disp, registry: registry, presence: presence, opts: opts, log: log}
}

// Register mounts every route under /chat. auth runs before each route except
// health.
func (h *Handler) Register(r gin.IRouter, auth gin.HandlerFunc) {
	g := r.Group("/chat")
	opt := mid.RouteOpt{Auth: auth}

	mid.GET(g, "/health", h.Health, mid.RouteOpt{})
	mid.GET(g, "/rooms", h.ListRooms, opt)
	mid.GET(g, "/rooms/:id", h.GetOrCreateRoom, opt) // :id 为对方用户ID
	mid.GET(g, "/rooms/:id/messages", h.Messages, opt)
	mid.GET(g, "/rooms/:id/messages/all", h.History, opt)
	mid.POST(g, "/rooms/:id/read", h.MarkRead, opt)
	mid.DELETE(g, "/rooms/:id", h.DeleteRoom, opt)
	mid.POST(g, "/messages", h.SendMessage, opt)
	mid.GET(g, "/unread-count", h.UnreadCount, opt)
	mid.GET(g, "/presence/:userId", h.Presence, opt)
}

func (h *Handler) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.opts.Timeout)
}

func (h *Handler) GetOrCreateRoom(c *gin.Context) {
	me := security.UserID(c)
	ctx, cancel := h.ctx(c)
	defer cancel()

	r, err := h.rooms.GetOrCreate(ctx, me, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	sum, err := h.rooms.Summarize(ctx, r, me)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *Handler) ListRooms(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	list, err := h.rooms.ListForUser(ctx, security.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	if list == nil {
		list = []*model.RoomSummary{}
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) Messages(c *gin.Context) {
	page, size, err := h.paging(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	list, err := h.rooms.Messages(ctx, c.Param("id"), security.UserID(c), page, size)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(list))
}

func (h *Handler) History(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	list, err := h.rooms.History(ctx, c.Param("id"), security.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(list))
}

func (h *Handler) SendMessage(c *gin.Context) {
	var req chat.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errs.ErrInvalidArgument.WrapMsg(err.Error()))
		return
	}
	m, err := h.disp.Send(c.Request.Context(), security.UserID(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) MarkRead(c *gin.Context) {
	me, roomID := security.UserID(c), c.Param("id")
	ctx, cancel := h.ctx(c)
	defer cancel()

	// 先校验房间和成员身份，READ_RECEIPT 路径对未知房间是静默的
	if _, err := h.rooms.Member(ctx, roomID, me); err != nil {
		h.fail(c, err)
		return
	}
	n, err := h.disp.ReadReceipt(ctx, me, roomID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomId": roomID, "marked": n})
}

func (h *Handler) UnreadCount(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	n, err := h.rooms.UnreadTotal(ctx, security.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unreadCount": n})
}

func (h *Handler) DeleteRoom(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	if err := h.rooms.Delete(ctx, c.Param("id"), security.UserID(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Presence(c *gin.Context) {
	user := c.Param("userId")
	if h.registry.IsLive(user) {
		c.JSON(http.StatusOK, gin.H{"userId": user, "live": true, "node": h.opts.Node})
		return
	}
	if h.presence != nil {
		ctx, cancel := h.ctx(c)
		defer cancel()
		node, online, err := h.presence.Lookup(ctx, user)
		if err != nil {
			// 镜像只是参考信息，失败时按本机结果回答
			h.log.Warn("presence lookup", zap.String("user", user), zap.Error(err))
		} else if online {
			c.JSON(http.StatusOK, gin.H{"userId": user, "live": true, "node": node})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"userId": user, "live": false})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "UP",
		"service":     ServiceName,
		"connections": h.registry.Count(),
		"users":       h.registry.Users(),
	})
}

func (h *Handler) paging(c *gin.Context) (page, size int, err error) {
	page, size = 0, h.opts.PageSizeDefault
	if v := c.Query("page"); v != "" {
		if page, err = strconv.Atoi(v); err != nil || page < 0 {
			return 0, 0, errs.ErrInvalidArgument.WrapMsg("bad page", "page", v)
		}
	}
	if v := c.Query("size"); v != "" {
		if size, err = strconv.Atoi(v); err != nil || size <= 0 {
			return 0, 0, errs.ErrInvalidArgument.WrapMsg("bad size", "size", v)
		}
	}
	if size > h.opts.PageSizeMax {
		size = h.opts.PageSizeMax
	}
	return page, size, nil
}

// fail writes err as a CodeError body. A timed out store call is reported as
// unavailable.
func (h *Handler) fail(c *gin.Context, err error) {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, errs.ErrStoreUnavailable) {
		err = errs.ErrStoreUnavailable.Wrap(err)
	}
	ce := errs.From(err)
	status := ce.HTTPStatus()
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, ce)
}

func nonNil(list []*model.Message) []*model.Message {
	if list == nil {
		return []*model.Message{}
	}
	return list
}
