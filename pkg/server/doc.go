// Package server exposes agent runs and ledger actions over HTTP.
//
// Routes:
//
//	POST /v1/agent/run              plan lane
//	POST /v1/agent/converse         tool-loop lane
//	GET  /v1/ledger/{id}            read an entry
//	POST /v1/ledger/{id}/approve    release pending actions
//	POST /v1/ledger/{id}/status     report an external transition (sent, closed)
//	GET  /health, GET /metrics
package server
