package realtime

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // same-device mobile clients; origin is not a boundary here
	},
}

// WSHandler upgrades a client and streams snapshots for the named
// collection until the client disconnects.
func WSHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		collection := c.Param("name")
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}

		hub.Subscribe(collection, ws)
		log.Printf("[ws] subscriber joined %s", collection)

		// Keep the connection alive; incoming messages are ignored.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				break
			}
		}

		hub.Unsubscribe(collection, ws)
		log.Printf("[ws] subscriber left %s", collection)
	}
}
