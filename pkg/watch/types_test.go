package watch

import "testing"

func TestChangeTypeString(t *testing.T) {
	cases := map[ChangeType]string{
		ChangeUnknown:      "unknown",
		ChangeCreated:      "created",
		ChangeRemoved:      "removed",
		ChangeModified:     "modified",
		ChangeInvalidated:  "invalidated",
		ChangeOverflow:     "overflow",
		ChangeType(200):    "unknown",
	}
	for changeType, expected := range cases {
		if got := changeType.String(); got != expected {
			t.Errorf("ChangeType(%d).String() = %q, expected %q", changeType, got, expected)
		}
	}
}

func TestStatusString(t *testing.T) {
	cases := map[Status]string{
		StatusUninitialized:  "uninitialized",
		StatusListening:      "listening",
		StatusNotListening:   "not_listening",
		StatusFailedToListen: "failed_to_listen",
		StatusFinished:       "finished",
		Status(200):          "unknown",
	}
	for status, expected := range cases {
		if got := status.String(); got != expected {
			t.Errorf("Status(%d).String() = %q, expected %q", status, got, expected)
		}
	}
}
