// Package logs reads the daemon and task log files for the CLI.
//
// Last returns the final lines of a file together with the offset after
// them; Follow continues from that offset and emits complete lines as they
// are appended, using fsnotify on the file's directory so a log that does
// not exist yet is picked up when it is created.
package logs
