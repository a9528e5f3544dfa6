// Package clock abstracts time for deferred mechanism calls. Production code
// uses Real, which is backed by the runtime timers; tests drive a Manual
// clock so that deferred work fires exactly when the test advances time.
package clock
