package security

import (
	"net/http"
	"strings"

	"chatcore/tools/errs"
	tokens "chatcore/tools/security"

	"github.com/gin-gonic/gin"
)

// CtxUserIDKey 后续模块统一用这个 key 读取调用方身份
const CtxUserIDKey = "userId"

type Options struct {
	// JWT 密钥；为空则不接受 bearer token
	Secret []byte
	// 信任网关注入的用户头 / userId 查询参数
	TrustHeader bool

	HeaderUserID string // 默认 "X-User-Id"
	QueryToken   string // 默认 "token"
	QueryUserID  string // 默认 "userId"
}

func DefaultOptions() Options {
	return Options{
		TrustHeader:  true,
		HeaderUserID: "X-User-Id",
		QueryToken:   "token",
		QueryUserID:  "userId",
	}
}

// Resolver turns a request into the caller's user id. A bearer token, when
// configured and present, wins over the gateway header.
type Resolver struct {
	opts Options
	jwt  tokens.Options
}

func NewResolver(opts Options) *Resolver {
	def := DefaultOptions()
	if opts.HeaderUserID == "" {
		opts.HeaderUserID = def.HeaderUserID
	}
	if opts.QueryToken == "" {
		opts.QueryToken = def.QueryToken
	}
	if opts.QueryUserID == "" {
		opts.QueryUserID = def.QueryUserID
	}
	return &Resolver{opts: opts, jwt: tokens.DefaultOptions(opts.Secret)}
}

func (r *Resolver) Resolve(req *http.Request) (string, error) {
	if len(r.opts.Secret) > 0 {
		if token := bearer(req, r.opts.QueryToken); token != "" {
			sub, err := tokens.Verify(r.jwt, token)
			if err != nil {
				return "", errs.ErrUnauthenticated.WrapMsg(err.Error())
			}
			return sub, nil
		}
	}
	if r.opts.TrustHeader {
		if id := strings.TrimSpace(req.Header.Get(r.opts.HeaderUserID)); id != "" {
			return id, nil
		}
		if id := strings.TrimSpace(req.URL.Query().Get(r.opts.QueryUserID)); id != "" {
			return id, nil
		}
	}
	return "", errs.ErrUnauthenticated.WrapMsg("no identity on request")
}

// Middleware 解析身份并写入 context；失败直接 401
func (r *Resolver) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := r.Resolve(c.Request)
		if err != nil {
			ce := errs.From(err)
			c.AbortWithStatusJSON(ce.HTTPStatus(), ce)
			return
		}
		c.Set(CtxUserIDKey, id)
		c.Next()
	}
}

// UserID returns the identity stored by Middleware.
func UserID(c *gin.Context) string {
	return c.GetString(CtxUserIDKey)
}

// 兼容 Authorization: Bearer xxx 与 ?token=xxx
func bearer(req *http.Request, queryKey string) string {
	if authz := strings.TrimSpace(req.Header.Get("Authorization")); authz != "" {
		if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return strings.TrimSpace(authz[len("bearer "):])
		}
	}
	return strings.TrimSpace(req.URL.Query().Get(queryKey))
}
