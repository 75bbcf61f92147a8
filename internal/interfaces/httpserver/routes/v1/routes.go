package v1

import (
	"github.com/gin-gonic/gin"

	"fleethub/internal/interfaces/httpserver/handlers"
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

	group.POST("/models", r.handlers.Registry.CreateModel)
	group.GET("/models", r.handlers.Registry.ListModels)
	group.POST("/models/:code/firmware", r.handlers.Firmware.Upload)
	group.GET("/models/:code/firmware/:artifact", r.handlers.Firmware.Download)
	group.DELETE("/models/:code/firmware", r.handlers.Firmware.Delete)

	group.POST("/devices", r.handlers.Registry.CreateDevice)
	group.GET("/devices", r.handlers.Registry.ListDevices)
	group.GET("/devices/:id", r.handlers.Registry.GetDevice)
	group.DELETE("/devices/:id", r.handlers.Registry.DeleteDevice)
	group.GET("/devices/:id/config", r.handlers.Registry.GetConfig)
	group.PUT("/devices/:id/config", r.handlers.Registry.SetConfig)

	// Dump upload addresses the device by its key (what the device itself
	// knows); the admin read side addresses it by registry id. Both share
	// the :id segment since gin requires one wildcard name per position.
	group.POST("/devices/:id/coredumps", r.handlers.Coredump.Upload)
	group.GET("/devices/:id/coredumps", r.handlers.Coredump.List)
	group.GET("/devices/:id/coredumps/:dumpID", r.handlers.Coredump.Download)
	group.DELETE("/devices/:id/coredumps", r.handlers.Coredump.DeleteAll)
	group.DELETE("/devices/:id/coredumps/:dumpID", r.handlers.Coredump.Delete)
}
