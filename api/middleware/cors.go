package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// storefrontOrigins lists the browser origins allowed to call the API with
// credentials.
var storefrontOrigins = []string{
	"https://copperline.shop",
	"https://www.copperline.shop",
	"https://copperline.vercel.app", // preview deployments
}

// CORS applies the storefront origin policy. Guest carts ride on
// X-Session-Token, so that header must survive both directions.
func CORS() func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowOriginFunc:  allowOrigin,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Session-Token", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Session-Token", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}

func allowOrigin(_ *http.Request, origin string) bool {
	for _, allowed := range storefrontOrigins {
		if origin == allowed {
			return true
		}
	}
	// Dev servers hop ports.
	return strings.HasPrefix(origin, "http://localhost:")
}
