package router

import (
	"net/http"
	"sort"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/loyalty/backend/internal/interfaces/http/handler"
	"github.com/stretchr/testify/assert"
)

func TestServiceRoutes(t *testing.T) {
	engine := gin.New()
	NewRouter(engine).
		Register(LoyaltyRoutes(handler.NewLoyaltyHandler(nil, nil))).
		Register(SystemRoutes(handler.NewHealthHandler("loyalty-service", "test", nil, nil))).
		Setup()

	var routes []string
	for _, r := range engine.Routes() {
		routes = append(routes, r.Method+" "+r.Path)
	}
	sort.Strings(routes)

	assert.Equal(t, []string{
		http.MethodGet + " /api/v1/loyalty/:customer_id",
		http.MethodGet + " /api/v1/system/health",
		http.MethodGet + " /api/v1/system/info",
		http.MethodPost + " /api/v1/loyalty/:customer_id/spend",
	}, routes)
}
