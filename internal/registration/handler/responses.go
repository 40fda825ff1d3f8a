package handler

import (
	"time"

	"confreg/internal/pricing"
	"confreg/internal/registration/models"
)

// ParticipantResponse is the admin view of a participant.
type ParticipantResponse struct {
	Email                string     `json:"email"`
	Name                 string     `json:"name"`
	Mobile               string     `json:"mobile"`
	Address              string     `json:"address,omitempty"`
	Category             string     `json:"category"`
	AbstractStatus       string     `json:"abstract_status"`
	PaymentStatus        string     `json:"payment_status"`
	PaymentTransactionID string     `json:"payment_transaction_id,omitempty"`
	PaymentAmount        int64      `json:"payment_amount"`
	PaymentAmountDisplay string     `json:"payment_amount_display,omitempty"`
	PaymentDate          *time.Time `json:"payment_date,omitempty"`
	AccompanyingPersons  int        `json:"accompanying_persons"`
	WorkshopParticipants int        `json:"workshop_participants"`
	PaperStatus          string     `json:"paper_status"`
	CreatedAt            time.Time  `json:"created_at"`
}

// StatusResponse is what a participant may see about their own record.
type StatusResponse struct {
	Email          string `json:"email"`
	AbstractStatus string `json:"abstract_status"`
	PaymentStatus  string `json:"payment_status"`
	PaperStatus    string `json:"paper_status"`
}

type ParticipantListResponse struct {
	Participants []ParticipantResponse `json:"participants"`
	Count        int                   `json:"count"`
}

func toParticipantResponse(p *models.Participant) ParticipantResponse {
	resp := ParticipantResponse{
		Email:                p.Email,
		Name:                 p.Name,
		Mobile:               p.Mobile,
		Address:              p.Address,
		Category:             p.Category,
		AbstractStatus:       statusOrUnset(string(p.AbstractStatus)),
		PaymentStatus:        statusOrUnset(string(p.PaymentStatus)),
		PaymentTransactionID: p.PaymentTransactionID,
		PaymentAmount:        p.PaymentAmount,
		PaymentDate:          p.PaymentDate,
		AccompanyingPersons:  p.AccompanyingPersons,
		WorkshopParticipants: p.WorkshopParticipants,
		PaperStatus:          statusOrUnset(string(p.PaperStatus)),
		CreatedAt:            p.CreatedAt,
	}
	if p.PaymentAmount > 0 {
		resp.PaymentAmountDisplay = pricing.FormatINR(p.PaymentAmount / 100)
	}
	return resp
}

func toStatusResponse(p *models.Participant) StatusResponse {
	return StatusResponse{
		Email:          p.Email,
		AbstractStatus: statusOrUnset(string(p.AbstractStatus)),
		PaymentStatus:  statusOrUnset(string(p.PaymentStatus)),
		PaperStatus:    statusOrUnset(string(p.PaperStatus)),
	}
}

func statusOrUnset(s string) string {
	if s == "" {
		return "unset"
	}
	return s
}
