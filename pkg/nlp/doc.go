// Package nlp provides language model clients used for fact extraction and
// answer summarization. The base OpenAIClient speaks to OpenAI or any
// OpenAI-compatible endpoint; RetryClient and CircuitBreakerClient wrap a
// Client with exponential backoff and failure isolation.
package nlp
