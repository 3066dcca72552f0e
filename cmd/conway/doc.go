// Command conway reads, decodes and mints AnimatedSVGToken tokens.
//
// It lists an owner's tokens on a contract without an enumeration API,
// decodes token-URIs into their SVG and HTML assets, mints new Game of Life
// patterns, streams Transfer events and serves the gallery over HTTP.
// Pass --stub to run every command against an in-memory contract.
package main
