package http

import (
	stdhttp "net/http"
	"strings"
)

const bearerProtocol = "bearer"

// tokenFromRequest reads the access token from the Authorization header,
// the "bearer, <token>" websocket subprotocol pair or the token query
// parameter, in that order. Browsers cannot set headers on websocket
// handshakes, hence the last two.
func tokenFromRequest(r *stdhttp.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}

	var protocols []string
	for _, value := range r.Header.Values("Sec-WebSocket-Protocol") {
		for _, p := range strings.Split(value, ",") {
			protocols = append(protocols, strings.TrimSpace(p))
		}
	}
	for i := 0; i+1 < len(protocols); i++ {
		if strings.EqualFold(protocols[i], bearerProtocol) {
			return protocols[i+1]
		}
	}

	return r.URL.Query().Get("token")
}
