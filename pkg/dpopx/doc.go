// Package dpopx implements DPoP (RFC 9449) proof-of-possession for HTTP
// requests using ES256 device keys.
//
// Clients generate an ECDSA P-256 key pair per session, embed the public key
// as a JWK in each proof JWT, and sign the proof with the private key. The
// server side verifies proofs strictly: fixed typ and alg, embedded public
// key only, method and URI binding, a bounded iat window, and single-use jti
// enforcement through a replay cache.
package dpopx
