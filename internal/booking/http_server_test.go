package booking

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/SwiftFleetRent/SwiftFleetRent/internal/common/metrics"
)

func TestWriteErrMapping(t *testing.T) {
	mtr := metrics.NewMetrics("booking_http_test")
	h := NewHTTPServer(nil, nil, WithHTTPMetrics(mtr))

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"conflict", ErrConflict, http.StatusConflict},
		{"expired hold", ErrExpiredHold, http.StatusGone},
		{"not found", ErrNotFound, http.StatusNotFound},
		{"bad argument", fmt.Errorf("%w: customer_ref required", ErrInvalidArgument), http.StatusBadRequest},
		{"identity", ErrIdentityNotVerified, http.StatusPreconditionFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.writeErr(rec, tc.err)
			if rec.Code != tc.want {
				t.Fatalf("status for %v: got %d, want %d", tc.err, rec.Code, tc.want)
			}
		})
	}
}

func TestWriteErrCountsInternalErrors(t *testing.T) {
	mtr := metrics.NewMetrics("booking_http_errors_test")
	h := NewHTTPServer(nil, nil, WithHTTPMetrics(mtr))

	counter := mtr.ErrorsCount.WithLabelValues("booking")
	before := testutil.ToFloat64(counter)

	// 域错误映射为 4xx，不计入 errors_total
	rec := httptest.NewRecorder()
	h.writeErr(rec, ErrConflict)
	if got := testutil.ToFloat64(counter); got != before {
		t.Fatalf("domain error should not bump errors_total, got %v", got)
	}

	rec = httptest.NewRecorder()
	h.writeErr(rec, errors.New("db connection refused"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if got := testutil.ToFloat64(counter); got != before+1 {
		t.Fatalf("expected errors_total to increase by 1, got %v", got)
	}
}
