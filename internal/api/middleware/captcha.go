package middleware

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/captcha"
)

// HeaderCaptchaToken carries the Turnstile response token of the client widget.
const HeaderCaptchaToken = "X-Captcha-Token"

// CaptchaMiddleware requires a solved Turnstile challenge. It passes everything through
// when the verifier is disabled.
func CaptchaMiddleware(verifier captcha.ITurnstileVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil || !verifier.Enabled() {
			c.Next()
			return
		}
		token := c.GetHeader(HeaderCaptchaToken)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Captcha verification required"})
			return
		}
		ok, err := verifier.Verify(c.Request.Context(), token, c.ClientIP())
		if err != nil {
			log.Printf("ERROR: captcha verification failed: %v", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Unable to verify captcha"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Captcha verification failed"})
			return
		}
		c.Next()
	}
}
