package restexecutor

import "github.com/gin-gonic/gin"

// Register registers the handle to the router
type Register interface {
	Register(gin.IRouter)
}
