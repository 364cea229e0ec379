package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter 配置路由
// metrics 为 nil 时不注册 /metrics
func NewRouter(api *API, auth *Auth, hub *Hub, metrics http.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(api.Logger), cors())

	// 健康检查
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"status":  "ok",
		})
	})
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := r.Group("/api")
	{
		// 公开接口 (无需认证)
		v1.POST("/login", auth.Login)
		v1.POST("/register", auth.Register)

		v1.GET("/pois", api.ListPOIs)
		v1.GET("/pois/:id", api.GetPOI)
		v1.POST("/pois/:id/info", api.RequestInfo)
		v1.GET("/center", api.GetCenter)
		v1.GET("/nodes", api.GetNodes)
		v1.GET("/nodes/search", api.SearchNodes)
		v1.GET("/nodes/nearest", api.NearestNode)
		v1.GET("/nodes/:id", api.GetNodeByID)
		v1.GET("/facilities/:id/node", api.FacilityNode)
		v1.POST("/path/find", api.FindPath)
		if hub != nil {
			v1.GET("/events", hub.Stream)
		}

		// 修改注册表需要认证
		authorized := v1.Group("/")
		authorized.Use(auth.Middleware())
		{
			authorized.POST("/pois", api.AddPOI)
			authorized.DELETE("/pois/:id", api.RemovePOI)
			authorized.PUT("/center", api.SetCenter)
			authorized.POST("/load", api.Load)
			authorized.DELETE("/load", api.CancelLoad)
		}
	}
	return r
}

// cors 跨域中间件
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requestLogger 用 zap 记录每个请求
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("请求",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
