// Package api exposes the query responder over HTTP: the chat endpoint used
// by the dashboard plus read-only views of chat history, on-chain agent
// state and recently published prices.
package api
