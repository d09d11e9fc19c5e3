package api

import (
	"github.com/projectai397/sakshi-platform-sub002/src/catalog"
	"github.com/projectai397/sakshi-platform-sub002/src/orders"
	"github.com/projectai397/sakshi-platform-sub002/src/passport"
	"github.com/projectai397/sakshi-platform-sub002/src/pricing"
	"github.com/projectai397/sakshi-platform-sub002/src/recommend"
	"github.com/projectai397/sakshi-platform-sub002/src/rewards"
	"github.com/projectai397/sakshi-platform-sub002/src/seva"
)

// App bundles the services behind the HTTP API
type App struct {
	Catalog   *catalog.Catalog
	Pricing   *pricing.Engine
	Recommend *recommend.Service
	Seva      *seva.Service
	Orders    *orders.Service
	Rewards   *rewards.Service
	Passports *passport.Service
	Auth      *Verifier
	Version   string
}

type APIResponse struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type APIQuotePayload struct {
	Lines []pricing.Line `json:"lines"`
	Tier  pricing.Tier   `json:"tier"`
	Seva  int64          `json:"seva"`
}

type APISevaEarnPayload struct {
	UserID         string `json:"userId"`
	Activity       string `json:"activity"`
	Quantity       int64  `json:"quantity"`
	Ref            string `json:"ref"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type APIPassportCreatePayload struct {
	ItemID  string `json:"itemId"`
	OwnerID string `json:"ownerId"`
}

type APIRepairPayload struct {
	Notes     string `json:"notes"`
	CostCents int64  `json:"costCents"`
}

type APITransferPayload struct {
	NewOwnerID string `json:"newOwnerId"`
	PriceCents int64  `json:"priceCents"`
}
