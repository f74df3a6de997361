package workflow

// LockCount reports how many per-session locks are held in memory
func (s *Service) LockCount() int {
	n := 0
	s.locks.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
