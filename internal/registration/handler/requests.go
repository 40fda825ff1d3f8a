package handler

import (
	"strings"
	"time"

	"confreg/internal/registration/models"
	dErrors "confreg/pkg/domain-errors"
	"confreg/pkg/email"
)

type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Mobile   string `json:"mobile"`
	Address  string `json:"address"`
	Category string `json:"category"`
}

func (r *RegisterRequest) Normalize() {
	if r == nil {
		return
	}
	r.Email = models.NormalizeEmail(r.Email)
	r.Name = strings.TrimSpace(r.Name)
	r.Mobile = strings.TrimSpace(r.Mobile)
	r.Address = strings.TrimSpace(r.Address)
	r.Category = strings.TrimSpace(r.Category)
}

// Follows validation order: Size -> Required -> Syntax.
func (r *RegisterRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if len(r.Email) > email.MaxLength {
		return dErrors.New(dErrors.CodeValidation, "email must be 254 characters or less")
	}
	if len(r.Name) > 200 || len(r.Address) > 1000 || len(r.Mobile) > 20 {
		return dErrors.New(dErrors.CodeValidation, "field too long")
	}
	if r.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if r.Category == "" {
		return dErrors.New(dErrors.CodeValidation, "category is required")
	}
	if !email.Valid(r.Email) {
		return dErrors.New(dErrors.CodeValidation, "email is invalid")
	}
	return nil
}

// EmailRequest identifies a participant for abstract and paper submissions.
type EmailRequest struct {
	Email string `json:"email"`
}

func (r *EmailRequest) Normalize() {
	if r == nil {
		return
	}
	r.Email = models.NormalizeEmail(r.Email)
}

func (r *EmailRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	return nil
}

type AbstractStatusRequest struct {
	Email  string `json:"email"`
	Status string `json:"status"`

	status models.AbstractStatus
}

func (r *AbstractStatusRequest) Normalize() {
	if r == nil {
		return
	}
	r.Email = models.NormalizeEmail(r.Email)
	r.Status = strings.ToLower(strings.TrimSpace(r.Status))
}

func (r *AbstractStatusRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	status, err := models.ParseAbstractStatus(r.Status)
	if err != nil {
		return err
	}
	r.status = status
	return nil
}

// PaymentOverrideRequest settles the current pending cycle by hand.
type PaymentOverrideRequest struct {
	Email       string     `json:"email"`
	Status      string     `json:"status"`
	PaymentDate *time.Time `json:"payment_date,omitempty"`

	status models.PaymentStatus
}

func (r *PaymentOverrideRequest) Normalize() {
	if r == nil {
		return
	}
	r.Email = models.NormalizeEmail(r.Email)
	r.Status = strings.ToLower(strings.TrimSpace(r.Status))
}

func (r *PaymentOverrideRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	status, err := models.ParsePaymentStatus(r.Status)
	if err != nil {
		return err
	}
	if status == models.PaymentPending {
		return dErrors.New(dErrors.CodeValidation, "status must be completed or failed")
	}
	r.status = status
	return nil
}
