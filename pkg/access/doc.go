/*
Package access is the vault access checker (C3): a read-only layer over
pkg/store answering "may this user touch this vault", plus the shared Kind
vocabulary pkg/vaultchannel and pkg/syncconn use to classify a failure into
the right protocol-level response (auth_missing, auth_denied, not_found,
invalid_key, validation, internal).

Check enforces: a vault must exist and be undeleted; a supplied user_id
must be the owner, or — when include_shared is true — a VaultShare member.
*/
package access
