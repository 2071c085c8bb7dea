package broker

import (
	"net/http"

	"github.com/gorilla/websocket"

	"fleettrack/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// UpgradeHandler is the http.HandlerFunc chi mounts at /ws: it upgrades
// the connection and hands it to a new Client. Identity, if any, arrives
// later via the handshake frame's auth_token, not the upgrade request.
func UpgradeHandler(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Warn().Err(err).Msg("broker: upgrade failed")
			return
		}
		NewClient(deps, conn).Start()
	}
}
