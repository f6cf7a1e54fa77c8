// Package web3 holds the chain connectivity shared by the oracle binding:
// YAML chain definitions, the contract backend contract and a small client
// abstraction that both live RPC endpoints and the simulated backend satisfy.
package web3
