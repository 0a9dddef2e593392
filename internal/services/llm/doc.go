// Package llm provides a chat completion client for the meeting analysis
// phases (action items, sentiment, historical context).
//
// The client targets OpenRouter by default but works with any
// OpenAI-compatible /chat/completions endpoint. Requests always ask for a
// JSON object response; DecodeLLMJSON tolerates code fences and surrounding
// prose that some models still emit.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx, empty completions and network
// timeouts with exponential backoff (base 1s, max 10s, 4 attempts by
// default). Retry-After headers are honoured up to the max delay. Context
// cancellation aborts retries immediately.
package llm
