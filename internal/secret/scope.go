package secret

// Scope 是 secret 的作用域守卫：
//
//	s := secret.NewScope()
//	defer s.Close()
//	key := s.Track(deriveKey(...))
//
// Close 按登记的逆序释放，正常返回与错误返回路径一致。
type Scope struct {
	release []func()
	closed  bool
}

func NewScope() *Scope {
	return &Scope{}
}

// Track 登记 Buffer，返回同一个 Buffer 以便链式使用。
func (s *Scope) Track(b *Buffer) *Buffer {
	if b != nil {
		s.Defer(b.Destroy)
	}
	return b
}

// TrackBytes 登记一个普通切片，Close 时覆写为零。
func (s *Scope) TrackBytes(p []byte) []byte {
	if len(p) > 0 {
		s.Defer(func() { Wipe(p) })
	}
	return p
}

// Defer 登记任意清理函数（例如 bundle.Wipe）。
func (s *Scope) Defer(fn func()) {
	if s.closed {
		fn()
		return
	}
	s.release = append(s.release, fn)
}

// Close 执行全部清理；幂等。Close 之后再登记的清理会立即执行。
func (s *Scope) Close() {
	if s.closed {
		return
	}
	s.closed = true
	for i := len(s.release) - 1; i >= 0; i-- {
		s.release[i]()
	}
	s.release = nil
}
