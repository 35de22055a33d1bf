package realtime

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/ncobase/placesearch/ctxutil"
	"github.com/ncobase/placesearch/ecode"
	"github.com/ncobase/placesearch/logging/logger"
	"github.com/ncobase/placesearch/net/resp"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades HTTP requests to result-channel connections.
type Handler struct {
	manager *Manager
	buffer  int
	logger  *logger.Logger
}

// NewHandler creates a Handler.
func NewHandler(manager *Manager, buffer int, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{manager: manager, buffer: buffer, logger: log}
}

// HandleConnection handles the websocket upgrade. The session comes from
// the X-Session-ID header or the session query parameter and is required.
func (h *Handler) HandleConnection(c *gin.Context) {
	sessionID := c.GetHeader("X-Session-ID")
	if sessionID == "" {
		sessionID = c.Query("session")
	}
	if sessionID == "" {
		resp.Fail(c.Writer, resp.BadRequest(ecode.FieldIsRequired("session")))
		return
	}
	ctx := ctxutil.SetSessionID(ctxutil.Detach(c.Request.Context()), sessionID)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithFields(ctx, logrus.Fields{"error": err}).Error("failed to upgrade connection")
		return
	}

	client := NewClient(h.manager, conn, sessionID, h.buffer, h.logger)
	h.manager.Register(client)

	go client.WritePump()
	go client.ReadPump(ctx)
}
