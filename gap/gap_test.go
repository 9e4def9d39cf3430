// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package gap

import "testing"

func Test_PutGetRoundTrip(t *testing.T) {
	var buf []byte
	var err error
	buf, err = PutAD(buf, ADFlags, []byte{0x06})
	if err != nil {
		t.Fatalf("PutAD flags: %s", err)
	}
	buf, err = PutAD(buf, ADNameComplete, []byte("blessed device"))
	if err != nil {
		t.Fatalf("PutAD name: %s", err)
	}

	flags, err := GetAD(buf, ADFlags)
	if err != nil || len(flags) != 1 || flags[0] != 0x06 {
		t.Fatalf("GetAD flags = %v, %v", flags, err)
	}
	name, err := GetAD(buf, ADNameComplete)
	if err != nil || string(name) != "blessed device" {
		t.Fatalf("GetAD name = %q, %v", name, err)
	}
}

func Test_GetADNotFound(t *testing.T) {
	buf, _ := PutAD(nil, ADFlags, []byte{0x06})
	if _, err := GetAD(buf, ADTxPower); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func Test_PutADBufferFull(t *testing.T) {
	if _, err := PutAD(nil, ADNameComplete, make([]byte, 30)); err != ErrBufferFull {
		t.Fatalf("expected ErrBufferFull, got %v", err)
	}
}
