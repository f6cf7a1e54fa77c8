// Package llm contains the inference contracts used by the query responder:
// zero-shot intent classification, sentiment analysis and free-text
// generation. Provider specific clients live in sub-packages.
package llm
