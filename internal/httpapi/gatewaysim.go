package httpapi

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gavel/internal/payment"
)

// GatewaySim stands in for the external payment gateway: it issues a
// transaction id and a payment link synchronously and can post the
// asynchronous outcome webhook after a delay.
type GatewaySim struct {
	webhookURL  string
	notifyDelay time.Duration
	approveRate float64
	client      *http.Client
	log         *logrus.Entry
}

// NewGatewaySim wires the simulator. webhookURL is the fallback
// destination when a charge request does not name its own.
func NewGatewaySim(webhookURL string, notifyDelay time.Duration, approveRate float64, log *logrus.Entry) *GatewaySim {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &GatewaySim{
		webhookURL:  webhookURL,
		notifyDelay: notifyDelay,
		approveRate: approveRate,
		client:      &http.Client{Timeout: 5 * time.Second},
		log:         log,
	}
}

// Router builds the gin engine.
func (g *GatewaySim) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/pay", g.handlePay)
	r.POST("/simulate", g.handleSimulate)
	return r
}

func (g *GatewaySim) handlePay(c *gin.Context) {
	var req payment.ChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	txID := uuid.NewString()
	charge := payment.Charge{
		TransactionID: txID,
		Link:          "https://pay.example.com/pay/" + txID,
	}
	c.JSON(http.StatusOK, charge)

	callback := req.CallbackURL
	if callback == "" {
		callback = g.webhookURL
	}
	if g.notifyDelay > 0 && callback != "" {
		go g.autoNotify(callback, txID)
	}
}

func (g *GatewaySim) autoNotify(callbackURL, txID string) {
	time.Sleep(g.notifyDelay)
	status := "declined"
	if rand.Float64() < g.approveRate {
		status = "approved"
	}
	g.postOutcome(callbackURL, payment.Callback{TransactionID: txID, Status: status})
}

type simulateRequest struct {
	TransactionID string `json:"transaction_id" binding:"required"`
	Status        string `json:"status" binding:"required"`
}

// handleSimulate lets an operator settle a known transaction manually.
func (g *GatewaySim) handleSimulate(c *gin.Context) {
	var req simulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if g.webhookURL == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no webhook url configured"})
		return
	}
	g.postOutcome(g.webhookURL, payment.Callback{
		TransactionID: req.TransactionID,
		Status:        req.Status,
	})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (g *GatewaySim) postOutcome(url string, cb payment.Callback) {
	body, err := json.Marshal(cb)
	if err != nil {
		g.log.WithError(err).Error("marshal outcome failed")
		return
	}
	resp, err := g.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		g.log.WithError(err).WithField("transaction_id", cb.TransactionID).Error("post outcome failed")
		return
	}
	resp.Body.Close()
	g.log.WithFields(logrus.Fields{
		"transaction_id": cb.TransactionID,
		"status":         cb.Status,
		"code":           resp.StatusCode,
	}).Info("outcome webhook sent")
}
