package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSignupUnitsTotal(t *testing.T) {
	before := testutil.ToFloat64(SignupUnitsTotal.WithLabelValues("succeeded"))
	SignupUnitsTotal.WithLabelValues("succeeded").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(SignupUnitsTotal.WithLabelValues("succeeded")))
}

func TestSignupWorkersActive(t *testing.T) {
	SignupWorkersActive.Set(0)
	SignupWorkersActive.Add(3)
	SignupWorkersActive.Dec()
	assert.Equal(t, float64(2), testutil.ToFloat64(SignupWorkersActive))
}
