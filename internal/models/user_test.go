package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitTags(t *testing.T) {
	tags := SplitTags("Circuit, rescue ,,FLAG")
	assert.Len(t, tags, 3)
	assert.Contains(t, tags, "circuit")
	assert.Contains(t, tags, "rescue")
	assert.Contains(t, tags, "flag")
}

func TestSplitTags_Empty(t *testing.T) {
	assert.Empty(t, SplitTags(""))
	assert.Empty(t, SplitTags(" , ,"))
}

func TestAttendance_IsTerminal(t *testing.T) {
	assert.True(t, (&Attendance{Status: AttendanceStatusRejected}).IsTerminal())
	assert.True(t, (&Attendance{Status: AttendanceStatusCancelled}).IsTerminal())
	assert.False(t, (&Attendance{Status: AttendanceStatusPending}).IsTerminal())
	assert.False(t, (&Attendance{Status: AttendanceStatusApproved}).IsTerminal())
}

func TestEventMarshal_IsCommitted(t *testing.T) {
	assert.True(t, (&EventMarshal{Status: EventMarshalStatusAccepted}).IsCommitted())
	assert.True(t, (&EventMarshal{Status: EventMarshalStatusApproved}).IsCommitted())
	assert.False(t, (&EventMarshal{Status: EventMarshalStatusInvited}).IsCommitted())
	assert.False(t, (&EventMarshal{Status: EventMarshalStatusDeclined}).IsCommitted())
}

func TestUser_ToPublicStripsSecrets(t *testing.T) {
	u := User{EmployeeID: "EMP-001", Email: "m@kmt.example", Password: "hash", PushToken: "tok"}
	pub := u.ToPublic()
	assert.Equal(t, "EMP-001", pub.EmployeeID)
	assert.Equal(t, "m@kmt.example", pub.Email)
}
