package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLayout_For(t *testing.T) {
	l := For("/srv/q/")
	assert.Equal(t, "/srv/q", l.Root)
	assert.Equal(t, "/srv/q/QUEUE", l.Queue)
	assert.Equal(t, "/srv/q/RUNNING", l.Running)
	assert.Equal(t, "/srv/q/FAILED", l.Failed)
	assert.Equal(t, "/srv/q/FINISHED", l.Finished)
	assert.Equal(t, "/srv/q/PIDS", l.Pids)
	assert.Len(t, l.Dirs(), 6)
	assert.Equal(t, l.Finished, l.Terminal(true))
	assert.Equal(t, l.Failed, l.Terminal(false))
}

func TestLayout_Names(t *testing.T) {
	id := Identity("node7", 4242)
	assert.Equal(t, "node7-4242", id)
	assert.Equal(t, "node7-4242-echo_hi", RunningName(id, "echo_hi"))
	assert.Equal(t, "job", Suffixed("job", 0))
	assert.Equal(t, "job_3", Suffixed("job", 3))
}
