// Package language normalizes language hints and detected languages.
//
// Input may be an ISO 639-1 or 639-2 code, a BCP 47 tag such as "en-US" or
// an English language name. ToISO2 produces the two-letter code WhisperX
// expects and DisplayName the English name stored in meeting reports.
package language
