// Package lockmgr implements named locks on top of the keyspace.
//
// A lock is a string key holding the id of its owner. Acquisition uses
// SET NX, so only one caller can create the key, followed by a GET to
// confirm the stored owner. Locks with a ttl are released by a timer that
// deletes the key unless the owner changed in the meantime.
//
// Commands:
//
//	LOCK.ACQUIRE key [ttl-seconds]  -> owner id, or null if the lock is taken
//	LOCK.RELEASE key owner          -> 1 if released (or not held), 0 if owned by someone else
//	LOCK.OWNER key                  -> owner id or null
//
// Owner ids are random UUIDs. They protect against releasing a lock by
// accident, not against clients that can write the key directly.
package lockmgr
