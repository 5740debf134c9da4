package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"crm/pkg/metrics"
)

// MetricsEndpoint serves the prometheus registry.
func MetricsEndpoint(g prometheus.Gatherer) gin.HandlerFunc {
	return gin.WrapH(metrics.Handler(g))
}
