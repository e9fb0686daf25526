package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMailbox_IsSender(t *testing.T) {
	sender := Mailbox{Role: RoleSender}
	recipient := Mailbox{Role: RoleRecipient}

	assert.True(t, sender.IsSender())
	assert.False(t, recipient.IsSender())
}

func TestMailbox_Pause(t *testing.T) {
	m := Mailbox{Active: true}
	m.Pause("credential refresh failed")

	assert.False(t, m.Active)
	assert.True(t, m.NeedsReauth)
	if assert.NotNil(t, m.LastError) {
		assert.Equal(t, "credential refresh failed", *m.LastError)
	}
}
