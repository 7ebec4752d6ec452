package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RequireValidID rejects a path param ":id" that is empty, longer than 128
// bytes or contains whitespace. Such ids can never name a session or channel.
func RequireValidID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if id == "" || len(id) > 128 || strings.ContainsAny(id, " \t\r\n") {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid id"})
			return
		}
		c.Next()
	}
}
