/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	s := String()
	if !strings.HasPrefix(s, "paraspace "+Version) {
		t.Fatalf("unexpected version string %q", s)
	}
	if !strings.Contains(s, Commit) {
		t.Fatalf("version string missing commit: %q", s)
	}
}
