package l2err_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brindlenet/l2fabric/pkg/l2err"
)

func TestErrorIsSentinel(t *testing.T) {
	err := l2err.NotFound("vlan_get", "vlan 20")
	assert.True(t, errors.Is(err, l2err.ErrNotFound))
	assert.False(t, errors.Is(err, l2err.ErrForbidden))
}

func TestErrorMessageIncludesContext(t *testing.T) {
	err := l2err.Forbidden("vlan_delete", "vlan 1", "default VLAN cannot be deleted")
	msg := err.Error()
	assert.Contains(t, msg, "vlan_delete")
	assert.Contains(t, msg, "vlan 1")
	assert.Contains(t, msg, "default VLAN cannot be deleted")
}
