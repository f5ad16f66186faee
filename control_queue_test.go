package sctp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestControlQueuePushAndPopAll(t *testing.T) {
	q := newControlQueue()
	assert.Equal(t, 0, q.size())

	p1 := &packet{verificationTag: 1}
	p2 := &packet{verificationTag: 2}
	q.push(p1)
	q.pushAll([]*packet{p2})
	assert.Equal(t, 2, q.size())

	popped := q.popAll()
	assert.Equal(t, []*packet{p1, p2}, popped)
	assert.Equal(t, 0, q.size())
	assert.Empty(t, q.popAll())
}
