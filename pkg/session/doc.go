/*
Package session implements the TTL-bounded session store.

Records are JSON documents kept in a ports.KVStore under "session:<id>". Every write
re-arms the TTL; reads never do. Writes are read-modify-write and last-write-wins
unless a ports.DistributedLocker is configured, in which case callers serialize work on
one session with Store.WithLock. KeyedLocker is the in-process locker.
*/
package session
