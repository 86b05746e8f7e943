// Package env provides a unified method to create the process launcher
// for envexec.
//
// The local launcher runs programs as host processes in a new process
// group. The docker launcher runs every program in its own container with
// networking disabled and memory / pids limits applied.
package env
