package pool

// PooledObject describes objects managed by a bounded pool.
type PooledObject interface {
	Reset()
	SetReturned(bool)
	IsReturned() bool
}

// Poisoner is implemented by objects that scrub memory they lent out before being reused.
// Put calls Poison before Reset.
type Poisoner interface {
	Poison()
}
