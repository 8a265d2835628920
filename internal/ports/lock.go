package ports

// RunLockPort guards a whole pipeline run against concurrent invocations.
type RunLockPort interface {
	TryLock() (bool, error)
	Unlock() error
}
