package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/mautops/casework-gin/internal/auth"
	"github.com/mautops/casework-gin/internal/routing"
)

var upgrader = gorillaWS.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler 队列事件推送处理器
// validator 不为空时从 token 参数认证; 为空时（非生产环境）读取 user_id 和 roles 参数
func WebSocketHandler(hub *Hub, validator auth.TokenValidator, tables *routing.Tables) gin.HandlerFunc {
	return func(c *gin.Context) {
		var userID string
		var roles []string

		if validator != nil {
			token := c.Query("token")
			if token == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			userID, roles = claims.UserID(), claims.Roles()
		} else {
			userID = c.Query("user_id")
			roles = auth.ParseRoles(c.Query("roles"))
			if userID == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user_id"})
				return
			}
		}

		queues := tables.AccessibleQueues(roles)
		if len(queues) == 0 {
			c.JSON(http.StatusForbidden, gin.H{"error": "no accessible queues"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}

		client := NewClient(uuid.New().String(), userID, queues, hub, conn)
		select {
		case hub.Register <- client:
		case <-hub.done:
			conn.Close()
			return
		}

		go client.ReadPump()
		go client.WritePump()
	}
}
