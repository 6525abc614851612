// Package authsdk is the client SDK for the Karinja authentication service.
//
// A session is established with Login, which mints a fresh ES256 device key
// pair, registers its public JWK with the server, and persists the returned
// token bundle alongside the private key. Subsequent requests go through Do,
// which attaches a Bearer access token plus a single-use DPoP proof bound to
// the request, transparently refreshing the session once on a 401 before
// retrying. Logout clears local state without any network traffic.
package authsdk
