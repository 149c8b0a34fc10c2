package mlog

// FormatFingerprint formats a message fingerprint for logging.
//
// Fingerprints are 32 hex characters; only the first 8 are shown. Any other
// value is displayed in-full.
func FormatFingerprint(fp string) string {
	if len(fp) == 32 {
		return fp[:8]
	}

	return fp
}
