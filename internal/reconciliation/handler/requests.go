package handler

import (
	"strings"

	"confreg/internal/payment/txid"
	"confreg/internal/registration/models"
	dErrors "confreg/pkg/domain-errors"
)

const maxAddOns = 20

// QuoteRequest asks for the fee breakdown at request time.
type QuoteRequest struct {
	Email                string `json:"email"`
	AccompanyingPersons  int    `json:"accompanying_persons"`
	WorkshopParticipants int    `json:"workshop_participants"`
}

func (r *QuoteRequest) Normalize() {
	if r == nil {
		return
	}
	r.Email = models.NormalizeEmail(r.Email)
}

func (r *QuoteRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validateAddOns(r.Email, r.AccompanyingPersons, r.WorkshopParticipants)
}

// InitiateRequest starts a payment. Amount is optional; when present it is
// the total in rupees the client showed and must match the server quote.
type InitiateRequest struct {
	Email                string `json:"email"`
	AccompanyingPersons  int    `json:"accompanying_persons"`
	WorkshopParticipants int    `json:"workshop_participants"`
	Amount               int64  `json:"amount,omitempty"`
}

func (r *InitiateRequest) Normalize() {
	if r == nil {
		return
	}
	r.Email = models.NormalizeEmail(r.Email)
}

func (r *InitiateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Amount < 0 {
		return dErrors.New(dErrors.CodeValidation, "amount cannot be negative")
	}
	return validateAddOns(r.Email, r.AccompanyingPersons, r.WorkshopParticipants)
}

func validateAddOns(email string, accompanying, workshop int) error {
	if email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if accompanying < 0 || workshop < 0 {
		return dErrors.New(dErrors.CodeValidation, "add-on counts cannot be negative")
	}
	if accompanying > maxAddOns || workshop > maxAddOns {
		return dErrors.Newf(dErrors.CodeValidation, "add-on counts are limited to %d", maxAddOns)
	}
	return nil
}

// VerifyRequest names the transaction the browser returned with.
type VerifyRequest struct {
	TransactionID string `json:"transaction_id"`
}

func (r *VerifyRequest) Normalize() {
	if r == nil {
		return
	}
	r.TransactionID = strings.TrimSpace(r.TransactionID)
}

func (r *VerifyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.TransactionID == "" {
		return dErrors.New(dErrors.CodeValidation, "transaction_id is required")
	}
	if !txid.Sanitize(r.TransactionID) {
		return dErrors.New(dErrors.CodeValidation, "transaction_id is invalid")
	}
	return nil
}
