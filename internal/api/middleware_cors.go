package api

import "net/http"

const (
	corsAllowOrigin  = "*"
	corsAllowHeaders = "Origin, X-Requested-With, Content-Type, Accept, Authorization, X-CodePush-Plugin-Version, X-CodePush-Plugin-Name, X-CodePush-SDK-Version"
	corsAllowMethods = "PUT,POST,GET,PATCH,DELETE,OPTIONS"
)

// corsMiddleware sets the CORS headers on every response and always continues
// down the chain; preflight requests are answered by whatever route matches.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", corsAllowOrigin)
		w.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
		w.Header().Set("Access-Control-Allow-Methods", corsAllowMethods)
		next.ServeHTTP(w, r)
	})
}
