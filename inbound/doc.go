// Package inbound is the HTTP surface for billing provider deliveries. It
// owns raw-body handling (signatures are computed over exact bytes, so the
// body must never pass through a decoder first) and maps pipeline outcomes
// to the status codes the provider's retry loop keys on.
package inbound
