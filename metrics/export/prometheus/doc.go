// Package prometheus exposes tokenguard engine metrics in the Prometheus text
// format without depending on the Prometheus client library.
package prometheus
