package status

import (
	"errors"
	"net/http"
)

// Business-rule rejections. All of these are expected, recoverable-by-the-caller
// outcomes and are reported synchronously with a stable machine-readable code;
// none of them is a system fault.
var (
	ErrSlotNotFound          = errors.New("slot: slot not found")
	ErrSlotNotAvailable      = errors.New("slot: slot not available")
	ErrSlotInPast            = errors.New("slot: slot already started")
	ErrSlotFull              = errors.New("slot: slot full")
	ErrSlotOverlap           = errors.New("slot: overlapping slot exists")
	ErrSlotHasBookings       = errors.New("slot: slot has active bookings")
	ErrDuplicateBooking      = errors.New("booking: duplicate booking")
	ErrBookingNotFound       = errors.New("booking: booking not found")
	ErrAlreadyCancelled      = errors.New("booking: booking already cancelled")
	ErrCancellationDeadline  = errors.New("booking: cancellation deadline passed")
	ErrUnauthorized          = errors.New("auth: not allowed")
	ErrAlreadyOnWaitlist     = errors.New("waitlist: already on waitlist")
	ErrWaitlistEntryNotFound = errors.New("waitlist: entry not found")
	ErrCouponInvalid         = errors.New("coupon: invalid or expired coupon")
	ErrServiceNotFound       = errors.New("service: service not found")
	ErrConflict              = errors.New("store: concurrent update conflict")
	ErrDuplicatePaymentRef   = errors.New("payment: payment reference already processed")
)

var codes = map[error]string{
	ErrSlotNotFound:          "SLOT_NOT_FOUND",
	ErrSlotNotAvailable:      "SLOT_NOT_AVAILABLE",
	ErrSlotInPast:            "SLOT_IN_PAST",
	ErrSlotFull:              "SLOT_FULL",
	ErrSlotOverlap:           "SLOT_OVERLAP",
	ErrSlotHasBookings:       "SLOT_HAS_BOOKINGS",
	ErrDuplicateBooking:      "DUPLICATE_BOOKING",
	ErrBookingNotFound:       "BOOKING_NOT_FOUND",
	ErrAlreadyCancelled:      "ALREADY_CANCELLED",
	ErrCancellationDeadline:  "CANCELLATION_DEADLINE_PASSED",
	ErrUnauthorized:          "UNAUTHORIZED",
	ErrAlreadyOnWaitlist:     "ALREADY_ON_WAITLIST",
	ErrWaitlistEntryNotFound: "WAITLIST_ENTRY_NOT_FOUND",
	ErrCouponInvalid:         "COUPON_INVALID",
	ErrServiceNotFound:       "SERVICE_NOT_FOUND",
	ErrConflict:              "CONFLICT",
	ErrDuplicatePaymentRef:   "DUPLICATE_PAYMENT_REF",
}

var httpStatuses = map[error]int{
	ErrSlotNotFound:          http.StatusNotFound,
	ErrSlotNotAvailable:      http.StatusConflict,
	ErrSlotInPast:            http.StatusBadRequest,
	ErrSlotFull:              http.StatusConflict,
	ErrSlotOverlap:           http.StatusConflict,
	ErrSlotHasBookings:       http.StatusConflict,
	ErrDuplicateBooking:      http.StatusConflict,
	ErrBookingNotFound:       http.StatusNotFound,
	ErrAlreadyCancelled:      http.StatusConflict,
	ErrCancellationDeadline:  http.StatusUnprocessableEntity,
	ErrUnauthorized:          http.StatusForbidden,
	ErrAlreadyOnWaitlist:     http.StatusConflict,
	ErrWaitlistEntryNotFound: http.StatusNotFound,
	ErrCouponInvalid:         http.StatusUnprocessableEntity,
	ErrServiceNotFound:       http.StatusNotFound,
	ErrConflict:              http.StatusConflict,
	ErrDuplicatePaymentRef:   http.StatusConflict,
}

// Code returns the stable client-facing code for a business error, or "" when
// the error is not part of the taxonomy (i.e. a system error).
func Code(err error) string {
	for e, code := range codes {
		if errors.Is(err, e) {
			return code
		}
	}
	return ""
}

// HTTPStatus returns the response status for a business error, defaulting to
// 500 for anything outside the taxonomy.
func HTTPStatus(err error) int {
	for e, s := range httpStatuses {
		if errors.Is(err, e) {
			return s
		}
	}
	return http.StatusInternalServerError
}

// IsBusiness reports whether err is an expected business rejection rather than
// a system fault. Handlers use it to decide between passing through and logging.
func IsBusiness(err error) bool {
	return Code(err) != ""
}
