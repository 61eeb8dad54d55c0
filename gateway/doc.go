// Package gateway holds the outbound HTTP clients the billing service
// guards with its circuit breakers: the billing provider's session API and
// an OpenAI-compatible chat-completions endpoint. Clients return plain
// errors; classification and fallback policy live with the breakers in core.
package gateway
