// Package agent implements the query responder: it classifies a free-text
// chat query into one of a closed set of intents and dispatches it to the
// price, sentiment, prediction, news or amount-extraction handler.
package agent
