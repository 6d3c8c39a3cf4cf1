// Package storage owns everything persisted in the shared kv store: the
// global registry record, the per-user local ledger mirrors with their
// last-modified stamps, the session record and the device id. Key names
// are kept byte-compatible with the data written by earlier versions of
// the tracker.
package storage

// Well-known keys in the shared store.
const (
	keyGlobalData = "finance_tracker_global_data"
	keySession    = "financeAuth"
	keyDeviceID   = "finance_device_id"
)

func ledgerKey(username string) string {
	return "transactions_" + username
}

func lastModifiedKey(username string) string {
	return "lastModified_" + username
}
