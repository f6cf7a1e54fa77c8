// Package oracle binds the on-chain price oracle contract and the agent
// identity that signs registration and price submission transactions.
package oracle
