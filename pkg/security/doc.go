/*
Package security implements the password and vault-key cryptography used by
the revision store and the sync connection handshake.

Password hashes (pkg/store Users) and vault keyhashes (pkg/store Vaults) are
both derived the same way: SHA-256(scrypt(secret, salt)), hex-encoded, with
scrypt parameters N=32768, r=8, p=1, dklen=32 and a 64MiB memory budget.
Salts are random 20-character strings drawn from the printable ASCII
alphabet; bearer tokens are random 128-bit values, hex-encoded.

All comparisons against a stored hash go through ConstantTimeEqual
(crypto/subtle.ConstantTimeCompare) rather than ==, since a vault's keyhash
check sits directly on the sync handshake path and a timing leak there
would let an attacker recover it byte by byte.
*/
package security
