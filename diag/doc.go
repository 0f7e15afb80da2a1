// Package diag measures what goes wrong in shared-memory programs: lock
// contention, load imbalance between workers and false sharing.
package diag
