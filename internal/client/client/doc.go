// Package client contains the field client's view of the ingest server.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic contract (see the Client interface): Submit one
//     entry, Get its canonical state, Ping.
//  2. An HTTP implementation (see HTTPClient) that injects the bearer token,
//     guards submissions with a circuit breaker and maps responses to
//     sentinel errors.
//  3. A gRPC health probe (see HealthProber) used by the connectivity
//     monitor.
//  4. A websocket listener (see StreamListener) for server notifications.
//
// # Error Handling
//
// Outcomes are exposed as errors that callers can match with errors.Is:
// ErrUnavailable and ErrUnauthorized for conditions that may clear on their
// own, common.ErrTransient for server-side failures worth retrying, and
// *RejectedError (matching common.ErrPermanent) for payloads the server will
// never accept.
//
// All operations accept context.Context and honor cancellation.
package client
