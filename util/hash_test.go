package util_test

import (
	"strings"
	"testing"

	"github.com/downfa11-org/xstream/util"
)

func TestChecksumDeterministic(t *testing.T) {
	a := util.Checksum([]byte("hello"), []byte(" world"))
	b := util.Checksum([]byte("hello world"))
	if a != b {
		t.Errorf("checksum over split input should match whole input: %x vs %x", a, b)
	}
	if a == util.Checksum([]byte("hello Go")) {
		t.Errorf("different payloads should not collide")
	}
}

func TestGenerateName(t *testing.T) {
	n1 := util.GenerateName("worker")
	n2 := util.GenerateName("worker")

	if !strings.HasPrefix(n1, "worker-") {
		t.Errorf("expected prefix worker-, got %s", n1)
	}
	if n1 == n2 {
		t.Errorf("expected unique names, got %s twice", n1)
	}
	if len(util.GenerateName("")) != 8 {
		t.Errorf("expected bare 8-char suffix without prefix")
	}
}
