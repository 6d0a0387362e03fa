// Package testutil provides helpers shared by the loyalty package tests and
// the integration suite: unique ids, polling, an in-memory Kafka pipe and
// HTTP request helpers.
package testutil

import (
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// NewCustomerID returns a customer id unique to this run, so tests sharing a
// database never see each other's accounts.
func NewCustomerID(prefix string) string {
	return prefix + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// RequireEventually polls condition every interval and fails the test when it
// still does not hold after timeout. Use it for effects of the consumer, which
// runs on its own goroutine.
func RequireEventually(t *testing.T, condition func() bool, timeout, interval time.Duration, msgAndArgs ...any) {
	t.Helper()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.After(timeout)
	for !condition() {
		select {
		case <-deadline:
			require.Fail(t, "Condition not met within timeout", msgAndArgs...)
			return
		case <-ticker.C:
		}
	}
}
