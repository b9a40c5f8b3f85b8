package payment_test

import (
	"fmt"
	"testing"

	"github.com/Titi-shop/TiTi/internal/domain/payment"
)

func TestClassifyReason(t *testing.T) {
	transient := []string{
		"request timed out",
		"Network unreachable",
		"connection reset by peer",
		"service temporarily unavailable",
	}
	for _, reason := range transient {
		if !payment.IsTransient(payment.ClassifyReason(reason)) {
			t.Errorf("%q should classify as transient", reason)
		}
	}

	permanent := []string{
		"user rejected the payment",
		"insufficient balance",
		"payment already completed",
	}
	for _, reason := range permanent {
		if !payment.IsPermanent(payment.ClassifyReason(reason)) {
			t.Errorf("%q should classify as permanent", reason)
		}
	}
}

func TestIsTransient_Wrapped(t *testing.T) {
	err := fmt.Errorf("approve payment: %w", &payment.TransientError{Reason: "gateway timeout"})
	if !payment.IsTransient(err) {
		t.Error("wrapped transient error not recognized")
	}
	if payment.IsPermanent(err) {
		t.Error("transient error misread as permanent")
	}
}
