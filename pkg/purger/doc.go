/*
Package purger implements the background reclamation task (C6) as a
ticker-driven loop: sleep for Config.Interval, run one pass, repeat, with a
stop channel honored between iterations rather than mid-pass.

A pass has two sweeps. First, every vault past its vault_age grace period
since soft-deletion is hard-deleted: its pending uploads, shares, blob
directory, and document records are removed before the vault row itself.
Second, pending_files rows older than pending_age whose blob was never
confirmed by a DocumentRecord are reclaimed from disk and the database.
The pass ends with a VACUUM to reclaim the space both sweeps freed.

The purger acts only on pending_files rows and soft-deleted vaults. There is
no filesystem-versus-database reconciliation pass: a blob file referenced by
neither a DocumentRecord nor a pending_files row is not detected or removed.
*/
package purger
