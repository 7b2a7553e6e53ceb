package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"git.sr.ht/~aondrejcak/payout-api/kernel"
)

// ApiKeyMiddleware requires an X-Api-Key whose sha512 matches API_KEY_HASH.
// Without a configured hash every request passes.
func ApiKeyMiddleware(art *kernel.AppRuntime) gin.HandlerFunc {
	return func(c *gin.Context) {
		if art.ApiKeyHash == "" {
			c.Next()
			return
		}

		rt := kernel.Runtime(c)
		rt.StepInto("middleware.api_key")

		authHeader := c.GetHeader("X-Api-Key")
		if authHeader == "" {
			rt.Ef(401, "unauthorized: no api key")
			return
		}

		hashed := kernel.Sha512(authHeader)
		if subtle.ConstantTimeCompare([]byte(hashed), []byte(art.ApiKeyHash)) != 1 {
			rt.Ef(401, "unauthorized: invalid api key")
			return
		}

		rt.EndBlock()
		c.Next()
	}
}
