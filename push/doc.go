// Package push dispatches notifications to user devices through Expo and
// Firebase Cloud Messaging.
//
// Tokens are classified once at ingestion into a tagged Token value; the
// Queue partitions buffered messages by kind, sends each partition through
// its provider, retries recoverable failures with a constant backoff and
// removes tokens the provider reports as permanently invalid.
package push
