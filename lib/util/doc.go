/*
Package util contains the small building blocks shared by the write-behind
queue and the backends.

  - LockFreeMPSC: the lock-free multi-producer single-consumer intake the
    write-behind queue pushes operations into. Producers never block, the
    flush goroutine reads from a channel and can therefore select on timers
    and shutdown signals at the same time.
  - KeyHasher: seeded hashing of any comparable key, used to pick a queue
    stripe or a backend shard.
  - HashString: deterministic FNV-1a hash for string keys.
*/
package util
