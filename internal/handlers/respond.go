package handlers

import (
	"github.com/gin-gonic/gin"
)

// respondError writes the standard failure body and aborts the chain.
func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": message})
}
