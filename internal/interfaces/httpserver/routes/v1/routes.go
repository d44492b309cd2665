package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/objectstage/batch-api/internal/interfaces/httpserver/handlers"
)

// Routes encapsulates versioned route registration.
type Routes struct {
	handlers *handlers.Provider
}

func NewRoutes(provider *handlers.Provider) *Routes {
	return &Routes{handlers: provider}
}

// Register attaches all v1 routes under /v1 prefix.
func (r *Routes) Register(router gin.IRouter) {
	group := router.Group("/v1")
	group.POST("/batches", r.handlers.Batch.Create)
	group.GET("/batches/:id", r.handlers.Batch.Get)
	group.GET("/batches/:id/files", r.handlers.Batch.Files)
	group.POST("/batches/:id/files/:index/complete", r.handlers.Batch.Complete)
	group.GET("/blobs/*key", r.handlers.Blob.Download)
}
