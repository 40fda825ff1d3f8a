package handler

import (
	"confreg/internal/pricing"
	"confreg/internal/reconciliation/service"
)

type QuoteResponse struct {
	Category             string `json:"category"`
	CategoryLabel        string `json:"category_label"`
	Tier                 string `json:"tier"`
	Base                 int64  `json:"base"`
	AccompanyingRate     int64  `json:"accompanying_rate"`
	WorkshopRate         int64  `json:"workshop_rate"`
	AccompanyingPersons  int    `json:"accompanying_persons"`
	WorkshopParticipants int    `json:"workshop_participants"`
	AddOns               int64  `json:"addons"`
	Total                int64  `json:"total"`
	TotalDisplay         string `json:"total_display"`
	DefaultApplied       bool   `json:"default_applied,omitempty"`
}

func toQuoteResponse(q pricing.Quote) QuoteResponse {
	return QuoteResponse{
		Category:             string(q.Category),
		CategoryLabel:        q.Category.Label(),
		Tier:                 string(q.Tier),
		Base:                 q.Base,
		AccompanyingRate:     q.AccompanyingRate,
		WorkshopRate:         q.WorkshopRate,
		AccompanyingPersons:  q.Accompanying,
		WorkshopParticipants: q.Workshop,
		AddOns:               q.AddOns,
		Total:                q.Total,
		TotalDisplay:         pricing.FormatINR(q.Total),
		DefaultApplied:       q.DefaultApplied,
	}
}

type InitiateResponse struct {
	RedirectURL   string        `json:"redirect_url"`
	TransactionID string        `json:"transaction_id"`
	Quote         QuoteResponse `json:"quote"`
}

// ReconcileResponse is returned by the verify and callback endpoints.
type ReconcileResponse struct {
	TransactionID string `json:"transaction_id"`
	Code          string `json:"code"`
	Message       string `json:"message,omitempty"`
	PaymentStatus string `json:"payment_status"`
	Applied       bool   `json:"applied"`
	Stale         bool   `json:"stale,omitempty"`
}

func toReconcileResponse(r *service.Result) ReconcileResponse {
	status := string(r.PaymentStatus)
	if status == "" {
		status = "unset"
	}
	return ReconcileResponse{
		TransactionID: r.TransactionID,
		Code:          r.Code,
		Message:       r.Message,
		PaymentStatus: status,
		Applied:       r.Applied,
		Stale:         r.Stale,
	}
}
