package service

import "confreg/internal/registration/models"

// Gateway status codes.
const (
	CodePaymentSuccess  = "PAYMENT_SUCCESS"
	CodePaymentPending  = "PAYMENT_PENDING"
	CodePaymentError    = "PAYMENT_ERROR"
	CodePaymentDeclined = "PAYMENT_DECLINED"
	CodePaymentCanceled = "PAYMENT_CANCELLED"
	CodeBadRequest      = "BAD_REQUEST"
	CodeAuthFailed      = "AUTHORIZATION_FAILED"
	CodeInternalError   = "INTERNAL_SERVER_ERROR"
	CodeTxNotFound      = "TRANSACTION_NOT_FOUND"
)

var failureCodes = map[string]struct{}{
	CodePaymentError:    {},
	CodePaymentDeclined: {},
	CodePaymentCanceled: {},
	CodeBadRequest:      {},
	CodeAuthFailed:      {},
	CodeInternalError:   {},
	CodeTxNotFound:      {},
}

// Classify maps a gateway status code to the payment status it settles.
// PaymentPending means no transition. known is false for codes outside the
// documented set, which are also treated as no transition.
func Classify(code string) (status models.PaymentStatus, known bool) {
	if code == CodePaymentSuccess {
		return models.PaymentCompleted, true
	}
	if code == CodePaymentPending {
		return models.PaymentPending, true
	}
	if _, ok := failureCodes[code]; ok {
		return models.PaymentFailed, true
	}
	return models.PaymentPending, false
}
