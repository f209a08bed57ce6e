// Package auth implements key-signature authentication between a client
// and a device.
//
// The client holds ed25519 private keys in a CredentialStore. The store
// is used through an append contract only: existing keys are tried in
// order and, when the device rejects all of them, a fresh key is
// generated, appended, and offered once. The device decides whether to
// trust a new key (a real device prompts the user).
//
// Devices keep trusted public keys in an AuthorizedKeys file using the
// OpenSSH authorized_keys format.
package auth
