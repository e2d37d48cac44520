// Package credentials stores WiFi network profiles used to provision
// cameras.
//
// Profiles live inside a YAML document shared with other subsystems.
// The store owns exactly two top-level keys (the active-network snapshot
// and the profile list) and rewrites only those on every save; unrelated
// keys pass through each read-modify-write cycle structurally unchanged.
//
// Passwords are stored in plaintext. The document carries connection
// secrets for a private fleet network; deployments that need more should
// put the file on an encrypted volume.
package credentials
