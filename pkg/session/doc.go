/*
Package session implements the consuming side of the harness event stream.

A Session is the single reader of a harness's events. It keeps a bounded
window of the current run's recent events for late observers and fans every
event out to live subscribers (SSE clients, MCP polls, terminals).
*/
package session
