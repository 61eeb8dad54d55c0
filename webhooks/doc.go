// Package webhooks receives billing provider event deliveries: it
// authenticates the raw payload, dedupes on the provider-assigned event id,
// and hands each first-seen event to the subscription synchronizer. The
// provider retries aggressively and may deliver the same event many times,
// concurrently and out of order; this package is the boundary that makes
// those redeliveries harmless.
package webhooks
