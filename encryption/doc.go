// Package encryption provides the authenticated symmetric box used for refresh
// envelopes and CSRF cookies.
//
// # Wire format
//
// A sealed blob is the std-base64 encoding of a JSON object
//
//	{"iv":"<base64 12-byte nonce>","data":"<base64 ciphertext>","tag":"<base64 16-byte GCM tag>"}
//
// Every Encrypt call draws its own nonce from crypto/rand. The API has no way to
// pass a nonce in, so nonce reuse under one key cannot be expressed by callers.
//
// # Key lifecycle
//
// The key is process-wide configuration loaded once at startup. Replacing it
// invalidates every outstanding refresh token and CSRF cookie at the same time,
// so a key rotation is a forced logout of all devices.
//
// # What this package must NOT do
//
//   - Return plaintext when the tag does not verify.
//   - Import tokenguard or any store package.
package encryption
