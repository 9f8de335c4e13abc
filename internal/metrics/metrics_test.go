package metrics

import (
	"errors"
	"fmt"
	"testing"

	"incentive-ledger-go/internal/store"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestResult(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{fmt.Errorf("approve: %w", store.ErrAlreadyProcessed), "already_processed"},
		{store.ErrAlreadyValidated, "already_processed"},
		{store.ErrUserNotFound, "not_found"},
		{store.ErrInsufficientFunds, "insufficient_funds"},
		{errors.New("boom"), "error"},
	}

	for _, tt := range tests {
		if got := Result(tt.err); got != tt.want {
			t.Errorf("Result(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestRecordTransition(t *testing.T) {
	before := testutil.ToFloat64(WorkflowTransitionsTotal.WithLabelValues("order", "create", "ok"))
	RecordTransition("order", "create", nil)
	after := testutil.ToFloat64(WorkflowTransitionsTotal.WithLabelValues("order", "create", "ok"))

	if after-before != 1 {
		t.Errorf("Expected counter to grow by 1, got %v", after-before)
	}
}
