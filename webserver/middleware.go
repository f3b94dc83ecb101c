package webserver

import (
	"net/http"
	"strings"
)

// apiRedirectRouter rewrites unversioned api calls (/api/sinks) to the
// current api version (/api/v1.0/sinks) without an additional round trip.
func (web *WebServer) apiRedirectRouter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {

		if strings.HasPrefix(req.URL.Path, "/api/") && !web.apiMatch.MatchString(req.URL.Path) {
			req.URL.Path = strings.Replace(req.URL.Path, "/api/", "/api/v"+web.apiVersion+"/", 1)
		}
		next.ServeHTTP(w, req)
	})
}
