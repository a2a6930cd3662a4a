package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/capitalize-ai/talent-copilot/internal/model"
)

func TestSubjects(t *testing.T) {
	assert.Equal(t, "copilot.acme.s1.msg.user", MessageSubject("acme", "s1", model.RoleUser))
	assert.Equal(t, "copilot.acme.s1.event.confirmation_created", EventSubject("acme", "s1", model.EventConfirmationCreated))
	assert.Equal(t, "copilot.acme._.event.job_queued", EventSubject("acme", "", model.EventJobQueued))
	assert.Equal(t, "copilot.a_b_c.s_1.msg.assistant", MessageSubject("a*b>c", "s 1", model.RoleAssistant))
}

func TestEventFilters(t *testing.T) {
	assert.Equal(t, []string{
		"copilot.acme_corp.s1.event.*",
		"copilot.acme_corp._.event.*",
	}, eventFilters("acme.corp", "s1"))
}
