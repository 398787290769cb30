package models

// Requests for the ops HTTP endpoints. Defined in domain for consistency and reuse.

type ReplayRequest struct {
	Channel string `query:"channel" json:"channel" validate:"required,oneof=signals decisions outcomes logs"`
	From    string `query:"from" json:"from"`
	To      string `query:"to" json:"to"`
	Limit   int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=10000"`
}

type RecentRequest struct {
	Channel string `query:"channel" json:"channel" validate:"required,oneof=signals decisions outcomes logs"`
	N       int    `query:"n" json:"n" default:"20" validate:"gte=1,lte=1000"`
}

type UpdateConfigRequest struct {
	Field string      `json:"field" validate:"required"`
	Value interface{} `json:"value" validate:"required"`
}

type BlockSymbolRequest struct {
	Symbol string `json:"symbol" validate:"required"`
}

type UpdateCircuitRequest struct {
	State string `json:"state" validate:"required,oneof=CLOSED OPEN HALF_OPEN"`
}
