package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"
)

const closeInvalidToken = 4001

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// upgrade runs the shared accept path: connection limits, the
// WebSocket handshake and limit tracking. Returns nil after having
// written the refusal response itself.
func upgrade(hub *Hub, w http.ResponseWriter, r *http.Request) *websocket.Conn {
	ip := extractIP(r)
	if !hub.CanAccept(ip) {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return nil
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("upgrade error: %v", err)
		return nil
	}
	hub.TrackConnect(ip)
	return conn
}

// SetupRoutes configures HTTP routes
func SetupRoutes(hub *Hub) *http.ServeMux {
	mux := http.NewServeMux()

	// Generic relay endpoint: clients get an id and exchange messages
	// through the hub
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn := upgrade(hub, w, r)
		if conn == nil {
			return
		}

		id := r.URL.Query().Get("id")
		if id == "" {
			id = uuid.NewString()
		}

		client := NewClient(hub, conn, extractIP(r), epGateway)
		client.id = id
		hub.AddClient(id, client)

		go client.WritePump()
		go client.ReadPump()

		client.SendJSON(ConnectedMsg{Type: MsgConnected, ID: id})
	})

	// Matchmaking requires an authenticated player. The token is
	// checked after the handshake so browsers see a proper close code
	// instead of a failed upgrade.
	mux.HandleFunc("/matchmaking", func(w http.ResponseWriter, r *http.Request) {
		conn := upgrade(hub, w, r)
		if conn == nil {
			return
		}

		userID, username, err := hub.identity.VerifyToken(r.URL.Query().Get("token"))
		if err != nil {
			log.Printf("matchmaking: rejected token: %v", err)
			msg := websocket.FormatCloseMessage(closeInvalidToken, "invalid token")
			conn.WriteMessage(websocket.CloseMessage, msg)
			conn.Close()
			hub.TrackDisconnect(extractIP(r))
			return
		}

		client := NewClient(hub, conn, extractIP(r), epMatchmaking)
		client.playerID = userID
		client.username = username

		go client.WritePump()
		go client.ReadPump()
	})

	// Game socket: one connection per seated player. ?binary=1 opts
	// into msgpack snapshots.
	mux.HandleFunc("/game/{gameId}", func(w http.ResponseWriter, r *http.Request) {
		gameID := r.PathValue("gameId")
		if gameID == "" {
			http.Error(w, "missing game id", http.StatusBadRequest)
			return
		}

		conn := upgrade(hub, w, r)
		if conn == nil {
			return
		}

		client := NewClient(hub, conn, extractIP(r), epGame)
		client.gameID = gameID
		client.binary = r.URL.Query().Get("binary") == "1"

		go client.WritePump()
		go client.ReadPump()
	})

	// QR code for joining a game from a second device
	mux.HandleFunc("/game/{gameId}/qr", func(w http.ResponseWriter, r *http.Request) {
		gameID := r.PathValue("gameId")
		scheme := "ws"
		if r.TLS != nil {
			scheme = "wss"
		}
		joinURL := fmt.Sprintf("%s://%s/game/%s", scheme, r.Host, gameID)

		png, err := qrcode.Encode(joinURL, qrcode.Medium, 256)
		if err != nil {
			http.Error(w, "qr encode failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "ok",
			"clients": hub.ClientCount(),
			"rooms":   hub.rooms.Count(),
		})
	})

	return mux
}
