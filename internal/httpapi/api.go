// Package httpapi is the thin HTTP surface around the core: it
// translates requests into broker events and snapshots, and carries no
// business logic of its own.
package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"gavel/internal/auction"
	"gavel/internal/broker"
	"gavel/internal/event"
	"gavel/internal/notify"
	"gavel/internal/sign"
)

// API serves the auctioneer's endpoints: auction creation, active
// listing, bid submission, key registration and websocket watching.
type API struct {
	store    *auction.Store
	pub      broker.Publisher
	keys     sign.Registry
	hub      *notify.Hub
	log      *logrus.Entry
	upgrader websocket.Upgrader
}

// NewAPI wires the auctioneer surface.
func NewAPI(store *auction.Store, pub broker.Publisher, keys sign.Registry, hub *notify.Hub, log *logrus.Entry) *API {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &API{
		store: store,
		pub:   pub,
		keys:  keys,
		hub:   hub,
		log:   log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Router builds the gin engine.
func (a *API) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/auctions", a.createAuction)
	r.GET("/auctions/active", a.listActive)
	r.POST("/auctions/:id/bids", a.submitBid)
	r.POST("/keys", a.registerKey)
	r.GET("/ws/auctions/:id", a.watchAuction)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

type createAuctionRequest struct {
	ID          string    `json:"id"`
	Description string    `json:"descricao" binding:"required"`
	Start       time.Time `json:"inicio" binding:"required"`
	End         time.Time `json:"fim" binding:"required"`
}

func (a *API) createAuction(c *gin.Context) {
	var req createAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	created, err := a.store.Create(auction.Auction{
		ID:          req.ID,
		Description: req.Description,
		Start:       req.Start,
		End:         req.End,
	})
	switch {
	case errors.Is(err, auction.ErrInvalidWindow):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, auction.ErrDuplicateID):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	a.log.WithField("auction_id", created.ID).Info("auction created")
	c.JSON(http.StatusCreated, created)
}

func (a *API) listActive(c *gin.Context) {
	c.JSON(http.StatusOK, a.store.ListActive())
}

type submitBidRequest struct {
	BidderID  string    `json:"user_id" binding:"required"`
	Amount    float64   `json:"valor"`
	Timestamp time.Time `json:"timestamp" binding:"required"`
	Signature string    `json:"assinatura" binding:"required"`
}

// submitBid publishes the signed bid as-is; acceptance is decided by
// the validation engine downstream.
func (a *API) submitBid(c *gin.Context) {
	var req submitBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bid := event.BidSubmitted{
		AuctionID: c.Param("id"),
		BidderID:  req.BidderID,
		Amount:    req.Amount,
		Timestamp: req.Timestamp,
		Signature: req.Signature,
	}
	if err := a.pub.Publish(c.Request.Context(), event.KeyBidSubmitted, bid); err != nil {
		a.log.WithError(err).Error("publish bid failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not submit bid"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "submitted"})
}

type registerKeyRequest struct {
	BidderID  string `json:"user_id" binding:"required"`
	PublicKey string `json:"public_key" binding:"required"`
}

func (a *API) registerKey(c *gin.Context) {
	var req registerKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pub, err := sign.ParsePublicKey([]byte(req.PublicKey))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.keys.Register(c.Request.Context(), req.BidderID, pub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	a.log.WithField("bidder_id", req.BidderID).Info("public key registered")
	c.JSON(http.StatusCreated, gin.H{"status": "registered"})
}

// watchAuction upgrades to a websocket fed by the auction's
// notification topic. Watchers only receive events published while they
// are connected.
func (a *API) watchAuction(c *gin.Context) {
	auctionID := c.Param("id")

	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	if err := a.hub.Join(auctionID, conn); err != nil {
		a.log.WithError(err).WithField("auction_id", auctionID).Error("watch join failed")
		conn.Close()
		return
	}

	go func() {
		defer a.hub.Leave(auctionID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
