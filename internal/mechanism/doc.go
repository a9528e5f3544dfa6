// Package mechanism defines the storage mechanism adapter interface and the
// insertion-ordered registry the coordinator fans out over.
package mechanism
