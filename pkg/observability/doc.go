/*
Package observability provides tools for monitoring the Crucible harness.

It includes Prometheus collectors fed by lifecycle hooks, and helpers to
combine several hook sets into one.
*/
package observability
