// Package sysnet
// Author: momentics <momentics@gmail.com>

package sysnet

// limitedOps caps every Send/Recv at max bytes, forcing callers through
// their partial-transfer paths.
type limitedOps struct {
	Ops
	max int
}

// Limit wraps ops so no single Send or Recv moves more than max bytes.
func Limit(ops Ops, max int) Ops {
	if max < 1 {
		max = 1
	}
	return limitedOps{Ops: ops, max: max}
}

func (l limitedOps) Send(fd int, p []byte) (int, error) {
	if len(p) > l.max {
		p = p[:l.max]
	}
	return l.Ops.Send(fd, p)
}

func (l limitedOps) Recv(fd int, p []byte) (int, error) {
	if len(p) > l.max {
		p = p[:l.max]
	}
	return l.Ops.Recv(fd, p)
}
