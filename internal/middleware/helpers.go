// internal/middleware/helpers.go
package middleware

import "github.com/gin-gonic/gin"

// GetRoles gets user roles from context
func GetRoles(c *gin.Context) []string {
	roles, exists := c.Get("roles")
	if !exists {
		return []string{}
	}

	rolesList, ok := roles.([]string)
	if !ok {
		return []string{}
	}

	return rolesList
}

// GetSessionID gets the token id (jti) from context
func GetSessionID(c *gin.Context) string {
	return c.GetString("jti")
}
