package middleware

import (
	"github.com/gin-gonic/gin"
)

// 配置选项
type RouteOpt struct {
	Auth gin.HandlerFunc // 非空则先经过鉴权
}

func chain(handler gin.HandlerFunc, opt RouteOpt) []gin.HandlerFunc {
	if opt.Auth != nil {
		return []gin.HandlerFunc{opt.Auth, handler}
	}
	return []gin.HandlerFunc{handler}
}

// 封装 POST
func POST(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	r.POST(path, chain(handler, opt)...)
}

// 封装 GET
func GET(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	r.GET(path, chain(handler, opt)...)
}

// 封装 DELETE
func DELETE(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	r.DELETE(path, chain(handler, opt)...)
}
