package engine

import "sync"

// RWLocker guards writes of engines without concurrent writers support
type RWLocker interface {
	sync.Locker
	RLock()
	RUnlock()
}

// noLock is used by engines safe for concurrent writes
type noLock struct{}

func (noLock) Lock()    {}
func (noLock) Unlock()  {}
func (noLock) RLock()   {}
func (noLock) RUnlock() {}
