// Package auth manages accounts, login tokens and access keys. Session tokens
// are HS256 JWTs; access keys are opaque random strings that CLI clients send
// as bearer credentials.
package auth
