package handlers

import "net/http"

// PrometheusMetrics exposes the service registry in the text format.
func (a *App) PrometheusMetrics(w http.ResponseWriter, r *http.Request) {
	a.Metrics.Handler().ServeHTTP(w, r)
}
