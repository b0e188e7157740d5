// Copyright (c) 2025 ToeiRei
// Gatehouse - key-gated SSH chat
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import "testing"

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"standard", RoleStandard, false},
		{"user", RoleStandard, false},
		{"elevated", RoleElevated, false},
		{"admin", RoleElevated, false},
		{"root", RoleStandard, true},
		{"", RoleStandard, true},
	}
	for _, tt := range tests {
		got, err := ParseRole(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRole(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseRole(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestEntityValueSemantics(t *testing.T) {
	a := Entity{Name: "alice", Role: RoleStandard, Key: "k1"}
	b := Entity{Name: "alice", Role: RoleStandard, Key: "k1"}
	if a != b {
		t.Fatal("structurally equal entities must compare equal")
	}
}

func TestNewKeychain(t *testing.T) {
	kc, err := NewKeychain([]Entity{
		{Name: "alice", Key: "k1"},
		{Name: "bob", Key: "k2", Role: RoleElevated},
	})
	if err != nil {
		t.Fatalf("NewKeychain: %v", err)
	}
	if len(kc.KeyPool) != 2 {
		t.Fatalf("key pool size = %d, want 2", len(kc.KeyPool))
	}
	for _, e := range kc.Entities {
		if _, ok := kc.KeyPool[e.Key]; !ok {
			t.Errorf("key of %q missing from pool", e.Name)
		}
	}

	if _, err := NewKeychain([]Entity{{Name: "a", Key: "k"}, {Name: "b", Key: "k"}}); err == nil {
		t.Fatal("duplicate key must be rejected")
	}
}

func TestRoleString(t *testing.T) {
	if RoleStandard.String() != "standard" || RoleElevated.String() != "elevated" {
		t.Fatal("unexpected role spellings")
	}
	if (Entity{Name: "bob", Role: RoleElevated}).String() != "bob (elevated)" {
		t.Fatal("unexpected elevated entity string")
	}
}
