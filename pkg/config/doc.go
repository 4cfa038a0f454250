/*
Package config resolves the options in Section 6.3 from the environment,
nested keys expressed with a `__` separator (PURGE__VAULT_AGE binds to
purge.vault_age), layered over the defaults the table specifies.
*/
package config
