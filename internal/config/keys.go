package config

// knownKeys is the full set of recognized configuration keys, in
// viper's dotted form. Anything else found in a config file is a
// startup error instead of a silent default deep inside command
// construction.
var knownKeys = map[string]struct{}{
	"source_dir":               {},
	"data_dir":                 {},
	"remote.user":              {},
	"remote.host":              {},
	"remote.path":              {},
	"remote.ssh_key":           {},
	"remote.port":              {},
	"debounce_seconds":         {},
	"extensions":               {},
	"max_transfers":            {},
	"transfer_timeout_seconds": {},
	"resweep_interval_seconds": {},
	"transfer.archive":         {},
	"transfer.compress":        {},
	"transfer.verbose":         {},
	"transfer.update_only":     {},
	"transfer.checksum":        {},
	"transfer.partial":         {},
	"transfer.itemize":         {},
	"transfer.stats":           {},
	"transfer.bwlimit_kbps":    {},
}

// UnknownKeys filters a key list (typically viper.AllKeys) down to the
// ones this daemon does not recognize.
func UnknownKeys(keys []string) []string {
	var unknown []string
	for _, k := range keys {
		if _, ok := knownKeys[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	return unknown
}
