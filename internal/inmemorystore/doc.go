// Package inmemorystore provides a thread-safe, in-memory implementation
// of the nodestore.Store interface. A fresh store is created for every run;
// nothing outlives the run except the report built from it.
package inmemorystore
