package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"gavel/internal/payment"
)

// Webhook is paymentd's HTTP surface: the gateway posts payment
// outcomes here.
type Webhook struct {
	coord *payment.Coordinator
	log   *logrus.Entry
}

// NewWebhook wires the webhook surface.
func NewWebhook(coord *payment.Coordinator, log *logrus.Entry) *Webhook {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Webhook{coord: coord, log: log}
}

// Router builds the gin engine.
func (w *Webhook) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/webhook", w.handleCallback)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

func (w *Webhook) handleCallback(c *gin.Context) {
	var cb payment.Callback
	if err := c.ShouldBindJSON(&cb); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, err := w.coord.HandleCallback(c.Request.Context(), cb)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"ok": true})
	case errors.Is(err, payment.ErrTransactionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, payment.ErrTransactionFinalized):
		// The outcome was already settled; answering OK stops the
		// gateway from retrying.
		c.JSON(http.StatusOK, gin.H{"ok": true})
	case errors.Is(err, payment.ErrUnknownOutcome):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		w.log.WithError(err).Error("webhook handling failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
